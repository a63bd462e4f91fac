package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// execIface is the command surface the REPL dispatches to.
type execIface interface {
	isLoggedIn() bool
	Register(ctx context.Context) error
	Login(ctx context.Context) error
	Logout(ctx context.Context) error
	WhoAmI(ctx context.Context) error
	Link(ctx context.Context, rawURL string) error
	List(ctx context.Context, entity string, page int) error
	Search(ctx context.Context, entity, term string) error
	AddExpense(ctx context.Context) error
	Delete(ctx context.Context, entity, id string) error
}

const (
	helpAnonymous = "Available commands: register, login, link <url>, whoami, exit"
	helpSignedIn  = "Available commands: list <entity> [page], search <entity> <term>, addexpense, " +
		"delete <entity> <id>, whoami, logout, exit\nEntities: diseases, vehicles, expenses, administrators"
)

// runREPL reads one command per line from reader and dispatches it to a,
// writing prompts and messages to out. The loop ends on EOF or when the user
// types "exit" or "quit". Command errors are reported and the loop continues.
func runREPL(ctx context.Context, a execIface, statusFn func() string, reader *bufio.Reader, out io.Writer) {
	for {
		fmt.Fprintf(out, "hk %s> ", statusFn())
		line, err := reader.ReadString('\n')
		if err != nil && (!errors.Is(err, io.EOF) || line == "") {
			return
		}
		parts := strings.Fields(line)
		if len(parts) == 0 {
			continue
		}
		cmd, args := parts[0], parts[1:]

		var cmdErr error
		switch cmd {
		case "help":
			if a.isLoggedIn() {
				fmt.Fprintln(out, helpSignedIn)
			} else {
				fmt.Fprintln(out, helpAnonymous)
			}

		case "register":
			cmdErr = a.Register(ctx)

		case "login":
			cmdErr = a.Login(ctx)

		case "logout":
			cmdErr = a.Logout(ctx)

		case "whoami":
			cmdErr = a.WhoAmI(ctx)

		case "link":
			if len(args) != 1 {
				fmt.Fprintln(out, "Usage: link <url>")
				continue
			}
			cmdErr = a.Link(ctx, args[0])

		case "l", "list":
			if len(args) < 1 || len(args) > 2 {
				fmt.Fprintln(out, "Usage: list <entity> [page]")
				continue
			}
			page := 1
			if len(args) == 2 {
				n, err := strconv.Atoi(args[1])
				if err != nil || n < 1 {
					fmt.Fprintln(out, "Page must be a positive number")
					continue
				}
				page = n
			}
			cmdErr = a.List(ctx, args[0], page)

		case "search":
			if len(args) < 1 {
				fmt.Fprintln(out, "Usage: search <entity> <term>")
				continue
			}
			cmdErr = a.Search(ctx, args[0], strings.Join(args[1:], " "))

		case "addexpense":
			cmdErr = a.AddExpense(ctx)

		case "delete":
			if len(args) != 2 {
				fmt.Fprintln(out, "Usage: delete <entity> <id>")
				continue
			}
			cmdErr = a.Delete(ctx, args[0], args[1])

		case "exit", "quit":
			fmt.Fprintln(out, "Bye!")
			return

		default:
			fmt.Fprintln(out, "Unknown command:", cmd)
		}

		if cmdErr != nil {
			fmt.Fprintln(out, "Error:", describe(cmdErr))
		}
		if errors.Is(err, io.EOF) {
			return
		}
	}
}
