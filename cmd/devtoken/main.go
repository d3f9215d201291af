// Command devtoken mints a bearer token signed with JWT_SECRET for local
// testing, standing in for the identity provider.
package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/iliyamo/grouptrip/internal/model"
	"github.com/iliyamo/grouptrip/internal/utils"
)

func main() {
	sub := flag.String("sub", "", "user id (token subject)")
	email := flag.String("email", "", "email claim")
	name := flag.String("name", "", "display name")
	staff := flag.Bool("staff", false, "grant the staff role")
	ttl := flag.Duration("ttl", 12*time.Hour, "token lifetime")
	flag.Parse()

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintln(os.Stderr, "read .env:", err)
	}
	secret := os.Getenv("JWT_SECRET")
	if secret == "" || *sub == "" {
		fmt.Fprintln(os.Stderr, "usage: JWT_SECRET=... devtoken -sub USER_ID [-email E] [-name N] [-staff] [-ttl 12h]")
		os.Exit(2)
	}
	tok, err := utils.NewAccessToken([]byte(secret), model.Actor{UserID: *sub, Email: *email, Name: *name, Staff: *staff}, *ttl)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	fmt.Println(tok.Token)
}
