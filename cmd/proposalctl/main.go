package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"

	"github.com/zianansar/proposal-writer-sub001/internal/backup"
	"github.com/zianansar/proposal-writer-sub001/internal/crypto"
	"github.com/zianansar/proposal-writer-sub001/internal/store"
)

func main() {
	// ---- export ----
	exportCmd := flag.NewFlagSet("export", flag.ExitOnError)
	exportData := exportCmd.String("data", "./data", "application data directory")

	// ---- preview ----
	previewCmd := flag.NewFlagSet("preview", flag.ExitOnError)
	previewFile := previewCmd.String("file", "", "archive file to preview")

	// ---- decrypt ----
	decryptCmd := flag.NewFlagSet("decrypt", flag.ExitOnError)
	decryptData := decryptCmd.String("data", "./data", "application data directory")
	decryptFile := decryptCmd.String("file", "", "archive file to inspect")

	// ---- import ----
	importCmd := flag.NewFlagSet("import", flag.ExitOnError)
	importData := importCmd.String("data", "./data", "application data directory")
	importFile := importCmd.String("file", "", "archive file to import")
	importMode := importCmd.String("mode", "merge", "merge (skip duplicates) or replace (replace all)")

	// ---- sweep ----
	sweepCmd := flag.NewFlagSet("sweep", flag.ExitOnError)
	sweepDir := sweepCmd.String("dir", "", "temp directory (default: OS temp dir)")
	sweepAge := sweepCmd.Duration("age", backup.DefaultSweepAge, "minimum age before a temp file is an orphan")

	if len(os.Args) < 2 {
		usage()
		return
	}

	switch os.Args[1] {
	case "export":
		_ = exportCmd.Parse(os.Args[2:])
		eng, cleanup := buildEngine(*exportData)
		defer cleanup()
		pass, err := promptSecret("Archive passphrase: ")
		dieIf(err)
		defer crypto.Zero(pass)
		path, err := eng.ExportArchive(context.Background(), string(pass))
		dieIf(err)
		fmt.Println(path)

	case "preview":
		_ = previewCmd.Parse(os.Args[2:])
		requireFlag(*previewFile, "-file")
		eng, cleanup := buildEngine(os.TempDir())
		defer cleanup()
		meta, err := eng.PreviewArchive(*previewFile)
		dieIf(err)
		printJSON(meta)

	case "decrypt":
		_ = decryptCmd.Parse(os.Args[2:])
		requireFlag(*decryptFile, "-file")
		eng, cleanup := buildEngine(*decryptData)
		defer cleanup()
		pass, err := promptSecret("Archive passphrase: ")
		dieIf(err)
		defer crypto.Zero(pass)
		res, err := eng.DecryptArchive(context.Background(), *decryptFile, string(pass))
		dieIf(err)
		printJSON(res)
		for _, warn := range res.Warnings {
			fmt.Fprintln(os.Stderr, "warning:", warn)
		}

	case "import":
		_ = importCmd.Parse(os.Args[2:])
		requireFlag(*importFile, "-file")
		var mode backup.ImportMode
		switch *importMode {
		case "merge":
			mode = backup.MergeSkipDuplicates
		case "replace":
			mode = backup.ReplaceAll
		default:
			dieIf(fmt.Errorf("unknown mode %q (use merge or replace)", *importMode))
		}
		eng, cleanup := buildEngineWithProgress(*importData)
		defer cleanup()
		pass, err := promptSecret("Archive passphrase: ")
		dieIf(err)
		defer crypto.Zero(pass)
		summary, err := eng.ExecuteImport(context.Background(), *importFile, string(pass), mode)
		dieIf(err)
		printJSON(summary)

	case "sweep":
		_ = sweepCmd.Parse(os.Args[2:])
		dir := *sweepDir
		if dir == "" {
			dir = os.TempDir()
		}
		log := logrus.New().WithField("component", "sweep")
		removed := backup.Sweep(dir, *sweepAge, log)
		fmt.Printf("removed %d orphaned temp file(s)\n", removed)

	default:
		usage()
		os.Exit(2)
	}
}

func buildEngine(dataDir string) (*backup.Engine, func()) {
	return buildEngineCfg(dataDir, nil)
}

func buildEngineWithProgress(dataDir string) (*backup.Engine, func()) {
	return buildEngineCfg(dataDir, func(p backup.Progress) {
		fmt.Fprintf(os.Stderr, "\r%-10s %d/%d", p.Phase, p.Current, p.Total)
		if p.Current == p.Total {
			fmt.Fprintln(os.Stderr)
		}
	})
}

func buildEngineCfg(dataDir string, onProgress func(backup.Progress)) (*backup.Engine, func()) {
	st, err := store.Open(filepath.Join(dataDir, "proposals.db"))
	dieIf(err)
	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)
	eng := backup.NewEngine(st, backup.Config{
		DataDir:     dataDir,
		Logger:      logger,
		OnProgress:  onProgress,
		KeepBackups: 5,
	})
	return eng, func() {
		eng.Close()
		_ = st.Close()
	}
}

func promptSecret(prompt string) ([]byte, error) {
	fmt.Fprint(os.Stderr, prompt)
	br := bufio.NewReader(os.Stdin)
	line, err := br.ReadBytes('\n')
	if err != nil && len(line) == 0 {
		return nil, err
	}
	for len(line) > 0 && (line[len(line)-1] == '\n' || line[len(line)-1] == '\r') {
		line = line[:len(line)-1]
	}
	return line, nil
}

func printJSON(v any) {
	b, err := json.MarshalIndent(v, "", "  ")
	dieIf(err)
	fmt.Println(string(b))
}

func requireFlag(val, name string) {
	if val == "" {
		dieIf(fmt.Errorf("%s is required", name))
	}
}

func dieIf(err error) {
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, `proposalctl - encrypted backup tooling

usage:
  proposalctl export  -data DIR
  proposalctl preview -file ARCHIVE
  proposalctl decrypt -data DIR -file ARCHIVE
  proposalctl import  -data DIR -file ARCHIVE -mode merge|replace
  proposalctl sweep   [-dir DIR] [-age DURATION]
`)
}
