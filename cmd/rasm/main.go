// Command rasm assembles source files against a declarative CPU
// profile, producing a raw binary image and, optionally, a listing.
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	cli "github.com/urfave/cli/v2"

	"github.com/kestrel-labs/rasm/asm"
	"github.com/kestrel-labs/rasm/diag"
	"github.com/kestrel-labs/rasm/emit"
	"github.com/kestrel-labs/rasm/profile"
)

// parseAddress parses a decimal, "$"-prefixed hex, or "0x"-prefixed
// hex address, the same numeric-literal prefixes the assembler itself
// accepts in expressions.
func parseAddress(s string) (int, error) {
	switch {
	case strings.HasPrefix(s, "$"):
		v, err := strconv.ParseInt(s[1:], 16, 64)
		return int(v), err
	case strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X"):
		v, err := strconv.ParseInt(s[2:], 16, 64)
		return int(v), err
	default:
		v, err := strconv.ParseInt(s, 10, 64)
		return int(v), err
	}
}

func main() {
	app := cli.NewApp()
	app.Name = "rasm"
	app.Usage = "retargetable two-pass assembler"
	app.ArgsUsage = "source"
	app.Flags = []cli.Flag{
		&cli.StringFlag{
			Name:     "cpu",
			Usage:    "name of the CPU profile to assemble against",
			Required: true,
		},
		&cli.StringFlag{
			Name:  "profiles-dir",
			Usage: "directory to search for <cpu>.toml profile documents",
			Value: "profiles",
		},
		&cli.StringFlag{
			Name:    "output",
			Aliases: []string{"o"},
			Usage:   "output binary image path (defaults to the source's basename with a .bin extension)",
		},
		&cli.StringFlag{
			Name:  "start-address",
			Usage: "starting address in effect until the first .ORG (default 0; e.g. $8000, 0x8000)",
		},
		&cli.StringFlag{
			Name:  "listing",
			Usage: "write an assembly listing to this path",
		},
		&cli.StringFlag{
			Name:  "log-file",
			Usage: "also write diagnostics to this file",
		},
		&cli.BoolFlag{
			Name:  "verbose",
			Usage: "trace each assembler pass to the log",
		},
	}
	app.Action = run
	app.Commands = []*cli.Command{
		{
			Name:  "profiles",
			Usage: "list the CPU profiles available in --profiles-dir",
			Action: func(c *cli.Context) error {
				return listProfiles(c.String("profiles-dir"))
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		if ec, ok := err.(cli.ExitCoder); ok {
			os.Exit(ec.ExitCode())
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	if c.Args().Len() < 1 {
		return cli.Exit("missing source file argument", 2)
	}
	srcPath := c.Args().First()

	profPath := filepath.Join(c.String("profiles-dir"), c.String("cpu")+".toml")
	prof, err := profile.Load(profPath)
	if err != nil {
		return cli.Exit(fmt.Sprintf("loading profile: %v", err), 2)
	}

	src, err := os.Open(srcPath)
	if err != nil {
		return cli.Exit(fmt.Sprintf("opening source: %v", err), 2)
	}
	defer src.Close()

	out := os.Stderr
	var logFile *os.File
	if path := c.String("log-file"); path != "" {
		logFile, err = os.Create(path)
		if err != nil {
			return cli.Exit(fmt.Sprintf("creating log file: %v", err), 2)
		}
		defer logFile.Close()
	}

	sink := diag.New(teeWriter(out, logFile))
	sink.SetVerbose(c.Bool("verbose"))

	a := asm.NewAssembler(prof, sink)
	if s := c.String("start-address"); s != "" {
		addr, err := parseAddress(s)
		if err != nil {
			return cli.Exit(fmt.Sprintf("invalid --start-address: %v", err), 2)
		}
		a.SetStartAddress(addr)
	}

	prog, err := a.Assemble(src)
	if err != nil {
		for _, d := range sink.Records() {
			fmt.Fprintln(out, d.String())
		}
		return cli.Exit("assembly failed", 1)
	}

	outPath := c.String("output")
	if outPath == "" {
		base := filepath.Base(srcPath)
		outPath = strings.TrimSuffix(base, filepath.Ext(base)) + ".bin"
	}
	bin, err := os.Create(outPath)
	if err != nil {
		return cli.Exit(fmt.Sprintf("creating output: %v", err), 2)
	}
	defer bin.Close()

	if _, err := emit.WriteBinary(bin, prog, prof.Info.FillByte); err != nil {
		return cli.Exit(fmt.Sprintf("writing output: %v", err), 2)
	}

	if path := c.String("listing"); path != "" {
		lf, err := os.Create(path)
		if err != nil {
			return cli.Exit(fmt.Sprintf("creating listing: %v", err), 2)
		}
		defer lf.Close()
		if err := emit.WriteListing(lf, prog); err != nil {
			return cli.Exit(fmt.Sprintf("writing listing: %v", err), 2)
		}
	}

	return nil
}

func listProfiles(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return cli.Exit(fmt.Sprintf("reading %s: %v", dir, err), 2)
	}
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".toml" {
			continue
		}
		name := e.Name()[:len(e.Name())-len(filepath.Ext(e.Name()))]
		prof, err := profile.Load(filepath.Join(dir, e.Name()))
		if err != nil {
			fmt.Printf("%-12s (failed to load: %v)\n", name, err)
			continue
		}
		fmt.Printf("%-12s %s, %d-bit, %s-endian\n", name, prof.Info.Name, prof.Info.AddressWidthBits, prof.Info.Endianness)
	}
	return nil
}

// teeWriter mirrors diagnostics to both stderr and an optional log
// file, matching the teacher's habit of always echoing to the
// console while optionally persisting a trace.
func teeWriter(primary *os.File, secondary *os.File) *multiWriter {
	return &multiWriter{primary: primary, secondary: secondary}
}

type multiWriter struct {
	primary   *os.File
	secondary *os.File
}

func (m *multiWriter) Write(p []byte) (int, error) {
	n, err := m.primary.Write(p)
	if err != nil {
		return n, err
	}
	if m.secondary != nil {
		m.secondary.Write(p)
	}
	return n, nil
}
