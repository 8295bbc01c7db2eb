package main

import (
	"bufio"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/elstore/backend-elstore/internal/app"
)

// Generates the argon2id hash expected in ADMIN_PASSWORD_HASH. The password is
// read from the first argument, or from stdin when no argument is given.
func main() {
	var password string
	if len(os.Args) > 1 {
		password = os.Args[1]
	} else {
		fmt.Fprint(os.Stderr, "Password: ")
		line, err := bufio.NewReader(os.Stdin).ReadString('\n')
		if err != nil {
			log.Fatalf("Failed to read password: %v", err)
		}
		password = strings.TrimRight(line, "\r\n")
	}
	if password == "" {
		log.Fatal("Password must not be empty")
	}

	hash, err := app.HashPassword(password)
	if err != nil {
		log.Fatalf("Failed to hash password: %v", err)
	}
	fmt.Println(hash)
}
