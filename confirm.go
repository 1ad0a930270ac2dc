package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"
)

// confirmYN asks a yes/no question on stdin, defaulting to no.
func confirmYN(prompt string) (bool, error) {
	fmt.Printf("%s [y/N]: ", prompt)
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		return false, err
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true, nil
	}
	return false, nil
}

// confirmToken gates a destructive command behind typing an exact token.
// A non-empty supplied value (from --confirm) must match the token.
func confirmToken(token, supplied string) error {
	if supplied != "" {
		if supplied == token {
			return nil
		}
		return fmt.Errorf("confirmation mismatch: expected %s", token)
	}
	fmt.Printf("type %s to proceed: ", token)
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		return err
	}
	if strings.TrimSpace(line) != token {
		return fmt.Errorf("cancelled")
	}
	return nil
}
