package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"capclicker.app/internal/persistence/archive"
	persistlog "capclicker.app/internal/persistence/log"
	"capclicker.app/internal/persistence/snapshot"
	"capclicker.app/internal/persistence/store"
	"capclicker.app/internal/sim/catalogs"
	"capclicker.app/internal/sim/game"
)

func main() {
	if len(os.Args) >= 2 {
		switch os.Args[1] {
		case "dump":
			dumpCmd(os.Args[2:])
			return
		case "events":
			eventsCmd(os.Args[2:])
			return
		case "runs":
			runsCmd(os.Args[2:])
			return
		case "db":
			dbCmd(os.Args[2:])
			return
		case "state":
			stateCmd(os.Args[2:])
			return
		case "save":
			saveCmd(os.Args[2:])
			return
		case "sessions":
			sessionsCmd(os.Args[2:])
			return
		case "saves":
			savesCmd(os.Args[2:])
			return
		}
	}
	savesCmd(os.Args[1:])
}

// savesCmd lists the file-backed saves (server started with -disable_db).
func savesCmd(args []string) {
	fs := flag.NewFlagSet("saves", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	_ = fs.Parse(args)

	files := store.NewFile(filepath.Join(*dataDir, "saves"))
	users, err := files.Users()
	if err != nil {
		fatal("read", err)
	}
	for _, u := range users {
		h, err := snapshot.ReadHeader(files.Path(u))
		if err != nil {
			fmt.Printf("%s\terror=%v\n", u, err)
			continue
		}
		fmt.Printf("%s\tv%d\t%s\t%s\n", u, h.Version, time.UnixMilli(h.SavedAtMs).UTC().Format(time.RFC3339), h.SaveID)
	}
}

// dumpCmd prints a save document and checks that the current catalogs would accept it.
func dumpCmd(args []string) {
	fs := flag.NewFlagSet("dump", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	configDir := fs.String("configs", "./configs", "config directory (catalogs used for the load check)")
	path := fs.String("file", "", "save file path (default: <data>/saves/<user>.save.zst)")
	userID := fs.String("user", "", "user id")
	_ = fs.Parse(args)

	p := strings.TrimSpace(*path)
	if p == "" {
		if strings.TrimSpace(*userID) == "" {
			fmt.Fprintln(os.Stderr, "missing -file or -user")
			os.Exit(2)
		}
		if err := store.CheckUserID(*userID); err != nil {
			fatal("user", err)
		}
		p = store.NewFile(filepath.Join(*dataDir, "saves")).Path(*userID)
	}

	sv, err := snapshot.Read(p)
	if err != nil {
		fatal("read save", err)
	}
	printJSON(sv)

	cats, err := catalogs.Load(*configDir)
	if err != nil {
		fmt.Fprintln(os.Stderr, "load catalogs:", err, "(skipping load check)")
		return
	}
	e := game.NewEngine(cats, game.DefaultRules(), nil)
	st, err := e.Adopt(sv.ToState())
	if err != nil {
		fmt.Fprintln(os.Stderr, "load check: rejected:", err)
		os.Exit(1)
	}
	fmt.Fprintf(os.Stderr, "load check: ok level=%d money=%.2f game_over=%v reason=%s\n",
		st.AscensionLevel, st.Money, e.IsGameOver(st), e.GameOverReason(st))
}

// eventsCmd reads the hourly telemetry files written with -event_log.
func eventsCmd(args []string) {
	fs := flag.NewFlagSet("events", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	path := fs.String("file", "", "single events-*.jsonl.zst file (default: every file under <data>/events)")
	userID := fs.String("user", "", "user_id filter")
	name := fs.String("name", "", "event name filter")
	_ = fs.Parse(args)

	var files []string
	if p := strings.TrimSpace(*path); p != "" {
		files = []string{p}
	} else {
		dir := filepath.Join(*dataDir, "events")
		ents, err := os.ReadDir(dir)
		if err != nil {
			fatal("read", err)
		}
		for _, e := range ents {
			n := e.Name()
			if !e.IsDir() && strings.HasPrefix(n, "events-") && strings.HasSuffix(n, ".jsonl.zst") {
				files = append(files, filepath.Join(dir, n))
			}
		}
		sort.Strings(files)
	}

	for _, f := range files {
		evs, err := persistlog.ReadEvents(f)
		if err != nil {
			fatal(filepath.Base(f), err)
		}
		for _, ev := range evs {
			if *userID != "" && ev.UserID != *userID {
				continue
			}
			if *name != "" && string(ev.Name) != *name {
				continue
			}
			printJSON(ev)
		}
	}
}

func runsCmd(args []string) {
	fs := flag.NewFlagSet("runs", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	userID := fs.String("user", "", "user id (required)")
	_ = fs.Parse(args)

	if strings.TrimSpace(*userID) == "" {
		fmt.Fprintln(os.Stderr, "missing -user")
		os.Exit(2)
	}
	runs, err := archive.NewDir(filepath.Join(*dataDir, "archives")).Runs(*userID)
	if err != nil {
		fatal("runs", err)
	}
	for _, r := range runs {
		printJSON(r)
	}
}
