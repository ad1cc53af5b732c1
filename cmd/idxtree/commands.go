package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/fatih/color"
	"github.com/go-faker/faker/v4"
	"go.uber.org/zap"
	"golang.org/x/term"

	"idxtree"
	"idxtree/logger"
)

var errUsage = errors.New("usage: idxtree [flags] create|put|get|select|dump|check|stats|seed [args]")

type config struct {
	path      string
	degree    int
	keySize   int
	valueSize int
	verbose   bool
	mmap      bool
}

func parseFlags(args []string, out io.Writer) (config, []string, error) {
	var cfg config
	fs := flag.NewFlagSet("idxtree", flag.ContinueOnError)
	fs.SetOutput(out)
	fs.StringVar(&cfg.path, "db", "index.db", "Path of the index file.")
	fs.IntVar(&cfg.degree, "degree", 3, "Degree of a new tree: nodes hold up to 2*degree-1 keys.")
	fs.IntVar(&cfg.keySize, "keysize", 16, "Maximum key length of a new tree.")
	fs.IntVar(&cfg.valueSize, "valsize", 64, "Maximum value length of a new tree.")
	fs.BoolVar(&cfg.verbose, "v", false, "Log tree events to stderr.")
	fs.BoolVar(&cfg.mmap, "mmap", false, "Memory-map the index file.")
	if err := fs.Parse(args); err != nil {
		return cfg, nil, err
	}
	return cfg, fs.Args(), nil
}

func (cfg config) options() ([]idxtree.Option, func(), error) {
	var options []idxtree.Option
	cleanup := func() {}
	if cfg.verbose {
		zl, err := zap.NewDevelopment()
		if err != nil {
			return nil, nil, err
		}
		options = append(options, idxtree.WithLogger(logger.NewZap(zl)))
		cleanup = func() { _ = zl.Sync() }
	}
	if cfg.mmap {
		options = append(options, idxtree.WithMMap())
	}
	return options, cleanup, nil
}

func run(args []string, out io.Writer) error {
	cfg, rest, err := parseFlags(args, out)
	if err != nil {
		return err
	}
	if len(rest) == 0 {
		return errUsage
	}
	options, cleanup, err := cfg.options()
	if err != nil {
		return err
	}
	defer cleanup()

	command, rest := strings.ToLower(rest[0]), rest[1:]
	if command == "create" {
		tree, err := idxtree.CreateFile(cfg.path, cfg.degree, cfg.keySize, cfg.valueSize, options...)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "created %s (degree %d, key size %d, value size %d)\n",
			cfg.path, cfg.degree, cfg.keySize, cfg.valueSize)
		return tree.Close()
	}

	tree, err := idxtree.OpenFile(cfg.path, options...)
	if err != nil {
		return err
	}
	err = dispatch(tree, command, rest, out)
	return errors.Join(err, tree.Close())
}

func dispatch(tree *idxtree.Tree, command string, args []string, out io.Writer) error {
	switch command {
	case "put":
		if len(args) != 2 {
			return errors.New("usage: put <key> <value>")
		}
		return tree.Add([]byte(args[0]), []byte(args[1]))
	case "get":
		if len(args) != 1 {
			return errors.New("usage: get <key>")
		}
		val, err := tree.Get([]byte(args[0]))
		if err != nil {
			return err
		}
		fmt.Fprintln(out, string(val))
		return nil
	case "select":
		if len(args) != 1 {
			return errors.New("usage: select <key>")
		}
		c, err := tree.Select([]byte(args[0]))
		if err != nil {
			return err
		}
		return c.ForEach(func(value []byte) error {
			_, err := fmt.Fprintln(out, string(value))
			return err
		})
	case "dump":
		return dump(tree, out)
	case "check":
		if err := tree.Check(); err != nil {
			return err
		}
		fmt.Fprintln(out, "ok")
		return nil
	case "stats":
		printStats(tree.Stats(), out)
		return nil
	case "seed":
		count := 1000
		if len(args) == 1 {
			n, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("seed count: %w", err)
			}
			count = n
		}
		return seed(tree, count)
	default:
		return fmt.Errorf("unknown command %q: %w", command, errUsage)
	}
}

// dump prints every page indented by depth. Colours are used only when
// stdout is a terminal.
func dump(tree *idxtree.Tree, out io.Writer) error {
	if out != os.Stdout || !term.IsTerminal(int(os.Stdout.Fd())) {
		color.NoColor = true
	}
	branch := color.New(color.FgCyan, color.Bold)
	leaf := color.New(color.FgGreen)
	meta := color.New(color.Faint)

	return tree.Walk(func(p idxtree.PageInfo) error {
		label := leaf
		if !p.Leaf {
			label = branch
		}
		pairs := make([]string, len(p.Keys))
		for i := range p.Keys {
			pairs[i] = fmt.Sprintf("%s=%s", p.Keys[i], p.Values[i])
		}
		_, err := fmt.Fprintf(out, "%s%s %s %s\n",
			strings.Repeat("  ", p.Depth),
			label.Sprintf("page %d", p.ID),
			meta.Sprintf("(parent %d@%d)", p.ParentID, p.ParentPos),
			strings.Join(pairs, " "))
		return err
	})
}

func printStats(s idxtree.Stats, out io.Writer) {
	fmt.Fprintf(out, "entries:     %d\n", s.Entries)
	fmt.Fprintf(out, "pages:       %d\n", s.Pages)
	fmt.Fprintf(out, "height:      %d\n", s.Height)
	fmt.Fprintf(out, "page size:   %d\n", s.PageSize)
	fmt.Fprintf(out, "cache:       %d pages, %d hits, %d misses, %d evictions\n",
		s.CachedPages, s.CacheHits, s.CacheMisses, s.CacheEvictions)
	fmt.Fprintf(out, "io:          %d reads (%d bytes), %d writes (%d bytes)\n",
		s.Reads, s.BytesRead, s.Writes, s.BytesWritten)
}

// seed fills the tree with count random word pairs. Words that do not fit
// the tree's fields are skipped.
func seed(tree *idxtree.Tree, count int) error {
	for added := 0; added < count; {
		err := tree.Add([]byte(faker.Word()), []byte(faker.Word()+" "+faker.Word()))
		switch {
		case errors.Is(err, idxtree.ErrKeyTooLarge), errors.Is(err, idxtree.ErrValueTooLarge):
			continue
		case err != nil:
			return err
		}
		added++
	}
	return nil
}
