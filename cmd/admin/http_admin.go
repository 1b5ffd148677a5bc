package main

import (
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"
)

func stateCmd(args []string) {
	fs := flag.NewFlagSet("state", flag.ExitOnError)
	baseURL := fs.String("url", "http://127.0.0.1:8080", "server base url")
	userID := fs.String("user", "", "user id (required)")
	_ = fs.Parse(args)

	if strings.TrimSpace(*userID) == "" {
		fmt.Fprintln(os.Stderr, "missing -user")
		os.Exit(2)
	}
	u := strings.TrimRight(strings.TrimSpace(*baseURL), "/") + "/admin/v1/state?user=" + url.QueryEscape(*userID)
	adminRequest(http.MethodGet, u, 5*time.Second)
}

func sessionsCmd(args []string) {
	fs := flag.NewFlagSet("sessions", flag.ExitOnError)
	baseURL := fs.String("url", "http://127.0.0.1:8080", "server base url")
	_ = fs.Parse(args)

	u := strings.TrimRight(strings.TrimSpace(*baseURL), "/") + "/admin/v1/observer/sessions"
	adminRequest(http.MethodGet, u, 5*time.Second)
}

// saveCmd asks the server to save every connected player now.
func saveCmd(args []string) {
	fs := flag.NewFlagSet("save", flag.ExitOnError)
	baseURL := fs.String("url", "http://127.0.0.1:8080", "server base url")
	_ = fs.Parse(args)

	u := strings.TrimRight(strings.TrimSpace(*baseURL), "/") + "/admin/v1/save"
	adminRequest(http.MethodPost, u, 10*time.Second)
}

func adminRequest(method, u string, timeout time.Duration) {
	req, err := http.NewRequest(method, u, nil)
	if err != nil {
		fatal("request", err)
	}
	cl := &http.Client{Timeout: timeout}
	resp, err := cl.Do(req)
	if err != nil {
		fatal("request", err)
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	fmt.Println(strings.TrimSpace(string(b)))
	if resp.StatusCode/100 != 2 {
		os.Exit(1)
	}
}
