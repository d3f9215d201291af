package service

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	qrcode "github.com/skip2/go-qrcode"

	"github.com/iliyamo/grouptrip/internal/model"
)

// DefaultQRSize is the edge length in pixels of rendered QR images.
const DefaultQRSize = 256

// TicketIssuer mints tickets and their QR payloads.  A payload is
//
//	GT-{group8}-{user8}-{index}.{sig}
//
// where sig is a truncated HMAC-SHA256 over the full group ID, user ID
// and holder index.  The same triple always yields the same payload for
// a given secret, and nobody without the secret can produce a valid one.
type TicketIssuer struct {
	secret []byte
	now    func() time.Time
	newID  func() string
}

// NewTicketIssuer returns an issuer signing with secret.  A nil now
// falls back to time.Now.
func NewTicketIssuer(secret []byte, now func() time.Time) *TicketIssuer {
	if now == nil {
		now = time.Now
	}
	return &TicketIssuer{secret: secret, now: now, newID: newTicketID}
}

// GenerateFor returns one ticket per holder of m.  Nothing is stored.
func (ti *TicketIssuer) GenerateFor(m model.Member, g *model.Group) []model.Ticket {
	at := ti.now().UTC()
	out := make([]model.Ticket, len(m.TicketHolders))
	for i, h := range m.TicketHolders {
		out[i] = model.Ticket{
			TicketID:       ti.newID(),
			GroupID:        g.ID,
			UserID:         m.UserID,
			HolderIndex:    i,
			HolderName:     h.Name,
			IsChild:        h.IsChild,
			AttractionName: g.AttractionName,
			Location:       g.Location,
			Date:           g.Date,
			Time:           g.Time,
			QRCode:         ti.QRPayload(g.ID, m.UserID, i),
			GeneratedAt:    at,
		}
	}
	return out
}

// QRPayload is the signed payload for one holder of one member.
func (ti *TicketIssuer) QRPayload(groupID, userID string, index int) string {
	body := fmt.Sprintf("GT-%s-%s-%d", shortID(groupID), shortID(userID), index)
	return body + "." + ti.sign(groupID, userID, index)
}

// Verify reports whether t carries the payload this issuer would have
// produced for it.
func (ti *TicketIssuer) Verify(t model.Ticket) bool {
	want := ti.QRPayload(t.GroupID, t.UserID, t.HolderIndex)
	return hmac.Equal([]byte(want), []byte(t.QRCode))
}

func (ti *TicketIssuer) sign(groupID, userID string, index int) string {
	mac := hmac.New(sha256.New, ti.secret)
	mac.Write([]byte(groupID + "|" + userID + "|" + strconv.Itoa(index)))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil)[:16])
}

// RenderQR encodes payload as a PNG QR code.
func RenderQR(payload string, size int) ([]byte, error) {
	if size <= 0 {
		size = DefaultQRSize
	}
	png, err := qrcode.Encode(payload, qrcode.Medium, size)
	if err != nil {
		return nil, fmt.Errorf("render qr: %w", err)
	}
	return png, nil
}

// newTicketID yields GT- plus the first uuid segment, upper-cased.
func newTicketID() string {
	return "GT-" + strings.ToUpper(shortID(uuid.NewString()))
}

// shortID is the part of id before its first dash, at most 8 chars.
func shortID(id string) string {
	if i := strings.IndexByte(id, '-'); i >= 0 {
		id = id[:i]
	}
	if len(id) > 8 {
		id = id[:8]
	}
	return id
}
