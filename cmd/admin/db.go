package main

import (
	"database/sql"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

func dbCmd(args []string) {
	fs := flag.NewFlagSet("db", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	dbPath := fs.String("db", "", "sqlite db path (default: <data>/index/capclicker.sqlite)")
	limit := fs.Int("limit", 20, "result limit")
	userID := fs.String("user", "", "user_id filter (events, save)")
	name := fs.String("name", "", "event name filter (events)")
	_ = fs.Parse(args)

	q := "saves"
	if fs.NArg() > 0 {
		q = strings.TrimSpace(fs.Arg(0))
	}
	if *limit <= 0 {
		*limit = 20
	}

	path := strings.TrimSpace(*dbPath)
	if path == "" {
		path = filepath.Join(*dataDir, "index", "capclicker.sqlite")
	}
	if _, err := os.Stat(path); err != nil {
		fmt.Fprintln(os.Stderr, "db:", err)
		os.Exit(1)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "open:", err)
		os.Exit(1)
	}
	defer db.Close()

	switch q {
	case "saves":
		rows, err := db.Query(`SELECT user_id,save_id,version,saved_at_ms,ascension_level,lifetime_earnings FROM saves ORDER BY saved_at_ms DESC LIMIT ?`, *limit)
		if err != nil {
			fatal("query", err)
		}
		defer rows.Close()
		for rows.Next() {
			var r struct {
				UserID           string  `json:"user_id"`
				SaveID           string  `json:"save_id"`
				Version          int     `json:"version"`
				SavedAtMs        int64   `json:"saved_at_ms"`
				SavedAt          string  `json:"saved_at"`
				AscensionLevel   int     `json:"ascension_level"`
				LifetimeEarnings float64 `json:"lifetime_earnings"`
			}
			if err := rows.Scan(&r.UserID, &r.SaveID, &r.Version, &r.SavedAtMs, &r.AscensionLevel, &r.LifetimeEarnings); err != nil {
				fatal("scan", err)
			}
			r.SavedAt = time.UnixMilli(r.SavedAtMs).UTC().Format(time.RFC3339)
			printJSON(r)
		}
		if err := rows.Err(); err != nil {
			fatal("rows", err)
		}

	case "save":
		if strings.TrimSpace(*userID) == "" {
			fmt.Fprintln(os.Stderr, "missing -user")
			os.Exit(2)
		}
		var raw string
		if err := db.QueryRow(`SELECT json FROM saves WHERE user_id=?`, *userID).Scan(&raw); err != nil {
			if err == sql.ErrNoRows {
				fmt.Fprintln(os.Stderr, "no save for", *userID)
				os.Exit(2)
			}
			fatal("scan", err)
		}
		printJSON(json.RawMessage(raw))

	case "events":
		where := []string{}
		qargs := []any{}
		if *userID != "" {
			where = append(where, "user_id=?")
			qargs = append(qargs, *userID)
		}
		if *name != "" {
			where = append(where, "name=?")
			qargs = append(qargs, *name)
		}
		stmt := `SELECT id,name,user_id,at_ms,params_json FROM events`
		if len(where) > 0 {
			stmt += " WHERE " + strings.Join(where, " AND ")
		}
		stmt += ` ORDER BY at_ms DESC, id LIMIT ?`
		qargs = append(qargs, *limit)

		rows, err := db.Query(stmt, qargs...)
		if err != nil {
			fatal("query", err)
		}
		defer rows.Close()
		for rows.Next() {
			var r struct {
				ID     string          `json:"id"`
				Name   string          `json:"name"`
				UserID string          `json:"user_id"`
				AtMs   int64           `json:"at_ms"`
				Params json.RawMessage `json:"params"`
			}
			var params string
			if err := rows.Scan(&r.ID, &r.Name, &r.UserID, &r.AtMs, &params); err != nil {
				fatal("scan", err)
			}
			r.Params = json.RawMessage(params)
			printJSON(r)
		}
		if err := rows.Err(); err != nil {
			fatal("rows", err)
		}

	case "event_counts":
		rows, err := db.Query(`SELECT name,COUNT(*),COUNT(DISTINCT user_id) FROM events GROUP BY name ORDER BY name`)
		if err != nil {
			fatal("query", err)
		}
		defer rows.Close()
		for rows.Next() {
			var r struct {
				Name  string `json:"name"`
				Count int64  `json:"count"`
				Users int64  `json:"users"`
			}
			if err := rows.Scan(&r.Name, &r.Count, &r.Users); err != nil {
				fatal("scan", err)
			}
			printJSON(r)
		}
		if err := rows.Err(); err != nil {
			fatal("rows", err)
		}

	case "leaderboard":
		rows, err := db.Query(`SELECT user_id,ascension_level,lifetime_earnings FROM saves ORDER BY ascension_level DESC, lifetime_earnings DESC LIMIT ?`, *limit)
		if err != nil {
			fatal("query", err)
		}
		defer rows.Close()
		rank := 0
		for rows.Next() {
			rank++
			var r struct {
				Rank             int     `json:"rank"`
				UserID           string  `json:"user_id"`
				AscensionLevel   int     `json:"ascension_level"`
				LifetimeEarnings float64 `json:"lifetime_earnings"`
			}
			if err := rows.Scan(&r.UserID, &r.AscensionLevel, &r.LifetimeEarnings); err != nil {
				fatal("scan", err)
			}
			r.Rank = rank
			printJSON(r)
		}
		if err := rows.Err(); err != nil {
			fatal("rows", err)
		}

	case "catalogs":
		rows, err := db.Query(`SELECT name,digest,updated_at FROM catalogs ORDER BY name`)
		if err != nil {
			fatal("query", err)
		}
		defer rows.Close()
		for rows.Next() {
			var r struct {
				Name      string `json:"name"`
				Digest    string `json:"digest"`
				UpdatedAt string `json:"updated_at"`
			}
			if err := rows.Scan(&r.Name, &r.Digest, &r.UpdatedAt); err != nil {
				fatal("scan", err)
			}
			printJSON(r)
		}
		if err := rows.Err(); err != nil {
			fatal("rows", err)
		}

	default:
		fmt.Fprintln(os.Stderr, "unknown db query:", q, "(saves|save|events|event_counts|leaderboard|catalogs)")
		os.Exit(2)
	}
}

func printJSON(v any) {
	b, _ := json.Marshal(v)
	fmt.Println(string(b))
}

func fatal(what string, err error) {
	fmt.Fprintf(os.Stderr, "%s: %v\n", what, err)
	os.Exit(1)
}
