// Command tfsutil exercises a TFS filesystem end to end in a single
// process: since TFS keeps no persistent on-disk format, there's nothing
// to "mount" across invocations, so every subcommand builds a fresh
// filesystem, does its work, and reports what happened before exiting.
package main

import (
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/urfave/cli/v2"

	"github.com/fooloaths/tfs"
	"github.com/fooloaths/tfs/config"
)

func main() {
	app := cli.App{
		Usage: "Exercise a TFS filesystem in memory",
		Commands: []*cli.Command{
			{
				Name:      "presets",
				Usage:     "List the named configuration presets",
				Action:    listPresets,
				ArgsUsage: " ",
			},
			{
				Name:      "roundtrip",
				Usage:     "Import a host file into a fresh TFS instance, then export it back out",
				Action:    roundtrip,
				ArgsUsage: "SOURCE_FILE DEST_FILE",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "preset",
						Usage: "named configuration preset to size the filesystem with",
						Value: "default",
					},
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatalf("tfsutil: %s", err.Error())
	}
}

func listPresets(context *cli.Context) error {
	for _, name := range config.PresetNames() {
		fmt.Println(name)
	}
	return nil
}

func roundtrip(context *cli.Context) error {
	if context.NArg() != 2 {
		return cli.Exit("expected SOURCE_FILE and DEST_FILE arguments", 1)
	}
	source, dest := context.Args().Get(0), context.Args().Get(1)

	cfg, err := config.Preset(context.String("preset"))
	if err != nil {
		return err
	}

	fs, err := tfs.New(cfg)
	if err != nil {
		return err
	}
	defer fs.Close()

	data, err := os.ReadFile(source)
	if err != nil {
		return err
	}

	name := filepath.Base(source)
	if err := fs.Create(name); err != nil {
		return err
	}

	h, err := fs.Open(name, 0)
	if err != nil {
		return err
	}
	if _, err := fs.Write(h, data); err != nil {
		return err
	}
	if err := fs.CloseHandle(h); err != nil {
		return err
	}

	stat, err := fs.Stat(name)
	if err != nil {
		return err
	}
	log.Printf("wrote %d bytes to inode %d", stat.Size, stat.Inode)

	if err := fs.CopyToHost(name, dest, nil); err != nil {
		return err
	}

	fsStat := fs.FSStat()
	log.Printf("filesystem usage: %d/%d bytes free", fsStat.FreeBytes, fsStat.TotalBytes)
	return nil
}
