package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/jmoiron/sqlx"

	"github.com/trezcool/feedesk/core"
	"github.com/trezcool/feedesk/core/accounting"
	"github.com/trezcool/feedesk/core/subscription"
)

var (
	errHelp = errors.New("help provided")

	// cliCaller is the identity of every CLI operation.
	cliCaller = core.Caller{ID: "admin-cli", Role: core.RoleAdmin}
)

type commandLine struct {
	db   *sqlx.DB
	subs *subscription.Service
	agg  *accounting.Aggregator
	out  io.Writer
}

func (cli *commandLine) printUsage() {
	fmt.Fprintln(cli.output(), "Usage:")
	fmt.Fprintln(cli.output(), "  migrate COMMAND [ARGS] - run a goose migration command (up, down, status, ...)")
	fmt.Fprintln(cli.output(), "  addteacher -id ID -name NAME - register a teacher (locked until a subscription is verified)")
	fmt.Fprintln(cli.output(), "  addplan -name NAME -price PRICE -months N -max-batches N [-upi-id ID -holder NAME] - create a subscription plan")
	fmt.Fprintln(cli.output(), "  setstatus -teacher ID -status active|locked - override a teacher's status")
	fmt.Fprintln(cli.output(), "  report -batch ID - print the installment breakdown of a batch")
}

func (cli *commandLine) output() io.Writer {
	if cli.out == nil {
		return os.Stdout
	}
	return cli.out
}

func (cli *commandLine) flagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(cli.output())
	return fs
}

// parse maps flag parse failures (including -h) to errHelp.
func parse(fs *flag.FlagSet, args []string) error {
	if err := fs.Parse(args); err != nil {
		return errHelp
	}
	return nil
}

func (cli *commandLine) run(args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}

	switch args[1] {
	case "migrate":
		if len(args) < 3 {
			cli.printUsage()
			return errHelp
		}
		return cli.migrate(args[2:])

	case "addteacher":
		cmd := cli.flagSet("addteacher")
		id := cmd.String("id", "", "The teacher's id, as issued by the identity provider.")
		name := cmd.String("name", "", "The teacher's display name.")
		if err := parse(cmd, args[2:]); err != nil {
			return err
		}
		if *id == "" || *name == "" {
			cmd.Usage()
			return errHelp
		}
		return cli.addTeacher(*id, *name)

	case "addplan":
		cmd := cli.flagSet("addplan")
		name := cmd.String("name", "", "The plan name.")
		price := cmd.String("price", "", "The plan price, e.g. 499.00")
		months := cmd.Int("months", 1, "The subscription duration in months.")
		maxBatches := cmd.Int("max-batches", 1, "The maximum number of active batches; -1 for unlimited.")
		upiID := cmd.String("upi-id", "", "The UPI id payments are collected on; a QR code is generated for it.")
		holder := cmd.String("holder", "", "The account holder name shown to payers.")
		if err := parse(cmd, args[2:]); err != nil {
			return err
		}
		if *name == "" || *price == "" {
			cmd.Usage()
			return errHelp
		}
		return cli.addPlan(*name, *price, *months, *maxBatches, *upiID, *holder)

	case "setstatus":
		cmd := cli.flagSet("setstatus")
		teacherID := cmd.String("teacher", "", "The teacher's id.")
		status := cmd.String("status", "", "The status to force: active|locked.")
		if err := parse(cmd, args[2:]); err != nil {
			return err
		}
		if *teacherID == "" || *status == "" {
			cmd.Usage()
			return errHelp
		}
		return cli.setStatus(*teacherID, subscription.Status(*status))

	case "report":
		cmd := cli.flagSet("report")
		batchID := cmd.String("batch", "", "The batch id.")
		if err := parse(cmd, args[2:]); err != nil {
			return err
		}
		if *batchID == "" {
			cmd.Usage()
			return errHelp
		}
		return cli.report(*batchID)

	default:
		cli.printUsage()
		return errHelp
	}
}
