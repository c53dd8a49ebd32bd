// Package main provides a CI-friendly smoke test for chatline presence.
//
// It validates:
//   - signup issues a credential and opens the presence socket
//   - both parties appear in each other's online view
//   - logout removes the departing party from the remaining view
//   - a stored credential resumes the session via /api/auth/check
package main

import (
	"context"
	"flag"
	"fmt"
	"net/url"
	"os"
	"time"

	"chatline/client"
)

func main() {
	var (
		baseURL  = flag.String("url", "http://127.0.0.1:8080", "chatline server base URL")
		password = flag.String("password", "smoke-test-password", "password for the throwaway accounts")
		timeout  = flag.Duration("timeout", 10*time.Second, "per-step timeout")
		verbose  = flag.Bool("v", false, "verbose output")
	)
	flag.Parse()

	if _, err := url.Parse(*baseURL); err != nil {
		fatalf("invalid -url: %v", err)
	}

	root := context.Background()
	suffix := time.Now().UnixNano()

	storeA := client.NewMemStore()
	a := mustController(*baseURL, storeA)
	defer a.Close()

	b := mustController(*baseURL, client.NewMemStore())
	defer b.Close()

	ctx, cancel := context.WithTimeout(root, *timeout)
	userA, err := a.Signup(ctx, "Smoke A", fmt.Sprintf("smoke-a-%d@example.com", suffix), *password, "smoke")
	cancel()
	if err != nil {
		fatalf("signup A: %v", err)
	}

	ctx, cancel = context.WithTimeout(root, *timeout)
	userB, err := b.Signup(ctx, "Smoke B", fmt.Sprintf("smoke-b-%d@example.com", suffix), *password, "smoke")
	cancel()
	if err != nil {
		fatalf("signup B: %v", err)
	}

	if *verbose {
		fmt.Printf("signed up: A=%s B=%s\n", userA.ID, userB.ID)
	}

	mustSee(a, userB.ID, *timeout, "A sees B online")
	mustSee(b, userA.ID, *timeout, "B sees A online")

	b.Logout()
	mustNotSee(a, userB.ID, *timeout, "A sees B leave")

	// A fresh controller with A's stored credential resumes the session.
	resumed := mustController(*baseURL, storeA)
	defer resumed.Close()

	ctx, cancel = context.WithTimeout(root, *timeout)
	got, err := resumed.CheckAuth(ctx)
	cancel()
	if err != nil {
		fatalf("check auth: %v", err)
	}
	if got.ID != userA.ID {
		fatalf("resumed identity %q, want %q", got.ID, userA.ID)
	}

	fmt.Println("presence smoke: OK")
}

func mustController(baseURL string, store client.CredentialStore) *client.Controller {
	c, err := client.New(baseURL, client.WithCredentialStore(store))
	if err != nil {
		fatalf("new controller: %v", err)
	}
	return c
}

func mustSee(c *client.Controller, userID string, timeout time.Duration, step string) {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if contains(c.OnlineUsers(), userID) {
			return
		}
		time.Sleep(50 * time.Millisecond)
	}
	fatalf("%s: %s never appeared in %v", step, userID, c.OnlineUsers())
}

func mustNotSee(c *client.Controller, userID string, timeout time.Duration, step string) {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if !contains(c.OnlineUsers(), userID) {
			return
		}
		time.Sleep(50 * time.Millisecond)
	}
	fatalf("%s: %s never left %v", step, userID, c.OnlineUsers())
}

func contains(ids []string, id string) bool {
	for _, s := range ids {
		if s == id {
			return true
		}
	}
	return false
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "presence smoke: "+format+"\n", args...)
	os.Exit(1)
}
