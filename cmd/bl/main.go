package main

import (
	"fmt"
	"os"
	"os/exec"
	"syscall"
)

func main() {
	bin, err := exec.LookPath("beanline")
	if err != nil {
		fmt.Fprintln(os.Stderr, "bl: beanline not found on PATH")
		os.Exit(1)
	}
	if err := syscall.Exec(bin, append([]string{"beanline"}, os.Args[1:]...), os.Environ()); err != nil {
		fmt.Fprintf(os.Stderr, "bl: %v\n", err)
		os.Exit(1)
	}
}
