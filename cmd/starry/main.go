// Command starry boots a syscall-compatibility kernel over a root image
// and runs file and resource-limit syscalls against it.
package main

import (
	"context"
	"flag"
	"os"

	"github.com/google/subcommands"
)

func main() {
	subcommands.Register(subcommands.HelpCommand(), "")
	subcommands.Register(subcommands.FlagsCommand(), "")
	subcommands.Register(&mkimageCmd{}, "image")
	subcommands.Register(&statCmd{}, "syscalls")
	subcommands.Register(&accessCmd{}, "syscalls")
	subcommands.Register(&rlimitCmd{}, "syscalls")
	subcommands.Register(&prettyCmd{}, "logs")

	flag.Parse()
	os.Exit(int(subcommands.Execute(context.Background())))
}
