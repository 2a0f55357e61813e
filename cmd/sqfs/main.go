package main

import (
	"fmt"
	"io/fs"
	"os"
	"time"

	squashfs "github.com/go-sqfs/sqfs"
	"github.com/go-sqfs/sqfs/compressor"
	"github.com/go-sqfs/sqfs/diriter"
	"github.com/go-sqfs/sqfs/fstree"
)

const usage = `sqfs - SquashFS CLI tool

Usage:
  sqfs ls <squashfs_file> [<path>]          List files in SquashFS (optionally in a specific path)
  sqfs cat <squashfs_file> <file>           Display contents of a file in SquashFS
  sqfs info <squashfs_file>                 Display information about a SquashFS archive
  sqfs pack <dir> <squashfs_file>           Build a SquashFS image from a host directory
  sqfs unpack <squashfs_file> <dir>         Extract a SquashFS image into a host directory
  sqfs help                                 Show this help message

Examples:
  sqfs ls archive.squashfs                  List all files at the root of archive.squashfs
  sqfs ls archive.squashfs lib              List all files in the lib directory
  sqfs cat archive.squashfs dir/file.txt    Display contents of file.txt from archive.squashfs
  sqfs info archive.squashfs                Show metadata about the SquashFS archive
  sqfs pack ./rootfs out.squashfs           Pack a directory tree into out.squashfs
  sqfs unpack out.squashfs ./extracted      Extract out.squashfs into ./extracted
`

func main() {
	if len(os.Args) < 2 {
		fmt.Println(usage)
		os.Exit(1)
	}

	cmd := os.Args[1]
	var err error

	switch cmd {
	case "ls":
		if len(os.Args) < 3 {
			fail("Missing SquashFS file path")
		}
		path := "."
		if len(os.Args) > 3 {
			path = os.Args[3]
		}
		err = listFiles(os.Args[2], path)

	case "cat":
		if len(os.Args) < 4 {
			fail("Missing SquashFS file path or target file")
		}
		err = catFile(os.Args[2], os.Args[3])

	case "info":
		if len(os.Args) < 3 {
			fail("Missing SquashFS file path")
		}
		err = showInfo(os.Args[2])

	case "pack":
		if len(os.Args) < 4 {
			fail("Missing source directory or output file path")
		}
		err = packDir(os.Args[2], os.Args[3])

	case "unpack":
		if len(os.Args) < 4 {
			fail("Missing SquashFS file path or destination directory")
		}
		err = unpackDir(os.Args[2], os.Args[3])

	case "help":
		fmt.Println(usage)
		return

	default:
		fmt.Printf("Error: Unknown command '%s'\n", cmd)
		fmt.Println(usage)
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

func fail(msg string) {
	fmt.Println("Error: " + msg)
	fmt.Println(usage)
	os.Exit(1)
}

// printFileInfo prints file information in a consistent format
func printFileInfo(path string, info fs.FileInfo) {
	typeChar := "-"
	if info.IsDir() {
		typeChar = "d"
	} else if info.Mode()&fs.ModeSymlink != 0 {
		typeChar = "l"
	}

	mode := info.Mode().String()
	permissions := mode[1:]

	size := fmt.Sprintf("%8d", info.Size())
	if info.IsDir() {
		size = "       -"
	}

	timeStr := info.ModTime().Format("Jan 02 15:04")

	fmt.Printf("%s%s %s %s %s\n", typeChar, permissions, size, timeStr, path)
}

func listFiles(sqfsPath, dirPath string) error {
	img, err := squashfs.Open(sqfsPath)
	if err != nil {
		return fmt.Errorf("failed to open SquashFS file: %w", err)
	}
	defer img.Close()

	if dirPath != "." {
		info, err := fs.Stat(img, dirPath)
		if err != nil {
			return fmt.Errorf("path '%s' not found: %w", dirPath, err)
		}
		if !info.IsDir() {
			return fmt.Errorf("'%s' is not a directory", dirPath)
		}
	}

	entries, err := fs.ReadDir(img, dirPath)
	if err != nil {
		return fmt.Errorf("failed to read directory '%s': %w", dirPath, err)
	}

	for _, entry := range entries {
		displayPath := entry.Name()
		if dirPath != "." {
			displayPath = dirPath + "/" + entry.Name()
		}

		info, err := entry.Info()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to get info for '%s': %s\n", displayPath, err)
			continue
		}

		printFileInfo(displayPath, info)
	}

	return nil
}

func catFile(sqfsPath, filePath string) error {
	img, err := squashfs.Open(sqfsPath)
	if err != nil {
		return fmt.Errorf("failed to open SquashFS file: %w", err)
	}
	defer img.Close()

	data, err := fs.ReadFile(img, filePath)
	if err != nil {
		return fmt.Errorf("failed to read file '%s': %w", filePath, err)
	}

	if _, err := os.Stdout.Write(data); err != nil {
		return fmt.Errorf("failed to write file contents to stdout: %w", err)
	}

	return nil
}

func showInfo(sqfsPath string) error {
	sb, err := squashfs.Open(sqfsPath)
	if err != nil {
		return fmt.Errorf("failed to open SquashFS file: %w", err)
	}
	defer sb.Close()

	fmt.Println("SquashFS Archive Information")
	fmt.Println("===========================")

	createTime := time.Unix(int64(sb.ModTime), 0)

	fmt.Printf("Version:          %d.%d\n", sb.VMajor, sb.VMinor)
	fmt.Printf("Creation time:    %s\n", createTime.Format(time.RFC1123))
	fmt.Printf("Block size:       %d bytes\n", sb.BlockSize)
	fmt.Printf("Compression:      %s\n", compressor.ID(sb.CompId))
	fmt.Printf("Flags:            %s\n", sb.Flags)
	fmt.Printf("Total size:       %d bytes\n", sb.BytesUsed)
	fmt.Printf("Inode count:      %d\n", sb.InodeCnt)
	fmt.Printf("Fragment count:   %d\n", sb.FragCount)
	fmt.Printf("ID count:         %d\n", sb.IdCount)

	var fileCount, dirCount, symCount int
	countFilesAndDirs(sb, ".", &fileCount, &dirCount, &symCount)

	fmt.Println("\nContent Summary")
	fmt.Println("--------------")
	fmt.Printf("Directories:      %d\n", dirCount)
	fmt.Printf("Regular files:    %d\n", fileCount)
	fmt.Printf("Symlinks:         %d\n", symCount)

	return nil
}

func countFilesAndDirs(fsys fs.FS, dir string, fileCount, dirCount, symCount *int) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return
	}

	for _, entry := range entries {
		info, err := entry.Info()
		if err != nil {
			continue
		}

		if info.IsDir() {
			*dirCount++
			subdir := entry.Name()
			if dir != "." {
				subdir = dir + "/" + entry.Name()
			}
			countFilesAndDirs(fsys, subdir, fileCount, dirCount, symCount)
		} else if info.Mode()&fs.ModeSymlink != 0 {
			*symCount++
		} else {
			*fileCount++
		}
	}
}

// packDir builds a SquashFS image from a host directory tree.
func packDir(srcDir, outPath string) error {
	tree, err := fstree.FromDir(srcDir, diriter.TreeOptions{})
	if err != nil {
		return fmt.Errorf("failed to walk '%s': %w", srcDir, err)
	}

	out, err := os.Create(outPath)
	if err != nil {
		return fmt.Errorf("failed to create '%s': %w", outPath, err)
	}
	defer out.Close()

	w, err := squashfs.NewWriter(out, squashfs.WithExportable())
	if err != nil {
		return fmt.Errorf("failed to set up writer: %w", err)
	}
	if err := w.Build(tree); err != nil {
		return fmt.Errorf("failed to build image: %w", err)
	}

	return nil
}

// unpackDir extracts every regular file, directory, and symlink from a
// SquashFS image onto the host filesystem.
func unpackDir(sqfsPath, destDir string) error {
	img, err := squashfs.Open(sqfsPath)
	if err != nil {
		return fmt.Errorf("failed to open SquashFS file: %w", err)
	}
	defer img.Close()

	return fs.WalkDir(img, ".", func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		target := destDir
		if p != "." {
			target = destDir + "/" + p
		}

		info, err := d.Info()
		if err != nil {
			return err
		}

		switch {
		case d.IsDir():
			return os.MkdirAll(target, 0o755)
		case info.Mode()&fs.ModeSymlink != 0:
			ino := info.Sys().(*squashfs.Inode)
			link, err := ino.Readlink()
			if err != nil {
				return err
			}
			return os.Symlink(string(link), target)
		default:
			data, err := fs.ReadFile(img, p)
			if err != nil {
				return err
			}
			return os.WriteFile(target, data, info.Mode().Perm())
		}
	})
}
