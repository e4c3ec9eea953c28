package main

import (
	"flag"
	"fmt"
	"os"

	"go.uber.org/fx"

	"github.com/chatsyncd/chatsync/internal/daemon"
	"github.com/chatsyncd/chatsync/internal/session"
)

func main() {
	accountFlag := flag.String("account", "", "account name (overrides config default)")
	offline := flag.Bool("offline", false, "start without connecting to the backend")
	flag.Parse()

	account := session.Resolve(*accountFlag)
	if err := session.ValidateName(account); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	app := fx.New(
		daemon.Module(daemon.Params{
			AccountName: account,
			Online:      !*offline,
		}),
	)

	app.Run()
}
