package main

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/feedesk/core"
	"github.com/trezcool/feedesk/core/subscription"
	"github.com/trezcool/feedesk/testutil"
)

func setup(t *testing.T) (*commandLine, *testutil.Env, *bytes.Buffer) {
	env := testutil.NewEnv(t)
	out := new(bytes.Buffer)
	return &commandLine{
		db:   env.DB,
		subs: env.Subscriptions,
		agg:  env.Accounting,
		out:  out,
	}, env, out
}

type cliTest struct {
	name       string
	args       []string // without program name
	wantErr    error
	wantErrStr string
	extra      interface{}
}

func (tt cliTest) check(t *testing.T, err error) {
	t.Helper()
	switch {
	case tt.wantErr != nil:
		if err != tt.wantErr {
			t.Errorf("cli.run() error = %v, wantErr %v", err, tt.wantErr)
		}
	case tt.wantErrStr != "":
		if err == nil || err.Error() != tt.wantErrStr {
			t.Errorf("cli.run() error = %v, wantErrStr %s", err, tt.wantErrStr)
		}
	case err != nil:
		t.Errorf("cli.run() unexpected error = %v", err)
	}
}

func Test_commandLine_usage(t *testing.T) {
	cli, _, out := setup(t)

	tests := []cliTest{
		{name: "no command", wantErr: errHelp},
		{name: "unknown command", args: []string{"lol"}, wantErr: errHelp},
		{name: "unknown flag", args: []string{"report", "-lol"}, wantErr: errHelp},
	}
	for _, tt := range tests {
		args := append([]string{"admin"}, tt.args...)

		t.Run(tt.name, func(t *testing.T) {
			tt.check(t, cli.run(args))
		})
	}
	assert.Contains(t, out.String(), "Usage:")
}

func Test_commandLine_migrate(t *testing.T) {
	cli, _, _ := setup(t)

	orig := gooseRunFunc
	t.Cleanup(func() { gooseRunFunc = orig })
	gooseRunFunc = func(command string, db *sql.DB, dir string, args ...string) error {
		switch command {
		case "up", "up-by-one", "down", "fix", "redo", "reset", "status", "version": // pass
		case "up-to", "down-to":
			if len(args) == 0 {
				return fmt.Errorf("%s must be of form: goose [OPTIONS] DRIVER DBSTRING %s VERSION", command, command)
			}
			if _, err := strconv.ParseInt(args[0], 10, 64); err != nil {
				return fmt.Errorf("version must be a number (got '%s')", args[0])
			}
		case "create":
			if len(args) == 0 {
				return fmt.Errorf("create must be of form: goose [OPTIONS] DRIVER DBSTRING create NAME [go|sql]")
			}
		default:
			return fmt.Errorf("%q: no such command", command)
		}
		return nil
	}

	tests := []cliTest{
		{name: "no subcommand", args: []string{"migrate"}, wantErr: errHelp},
		{name: "unknown subcommand", args: []string{"migrate", "lol"}, wantErrStr: "\"lol\": no such command"},
		{name: "up-to: no args", args: []string{"migrate", "up-to"}, wantErrStr: "up-to must be of form: goose [OPTIONS] DRIVER DBSTRING up-to VERSION"},
		{name: "up-to: non-int arg", args: []string{"migrate", "up-to", "lol"}, wantErrStr: "version must be a number (got 'lol')"},
		{name: "create: no args", args: []string{"migrate", "create"}, wantErrStr: "create must be of form: goose [OPTIONS] DRIVER DBSTRING create NAME [go|sql]"},
		{name: "down-to: no args", args: []string{"migrate", "down-to"}, wantErrStr: "down-to must be of form: goose [OPTIONS] DRIVER DBSTRING down-to VERSION"},
		{name: "up", args: []string{"migrate", "up"}},
		{name: "up-to", args: []string{"migrate", "up-to", "2"}},
		{name: "down-to", args: []string{"migrate", "down-to", "1"}},
		{name: "status", args: []string{"migrate", "status"}},
		{name: "create", args: []string{"migrate", "create", "refunds", "sql"}},
	}
	for _, tt := range tests {
		args := append([]string{"admin"}, tt.args...)

		t.Run(tt.name, func(t *testing.T) {
			tt.check(t, cli.run(args))
		})
	}
}

func Test_commandLine_addteacher(t *testing.T) {
	cli, env, _ := setup(t)

	tests := []cliTest{
		{name: "no args", args: []string{"addteacher"}, wantErr: errHelp},
		{name: "id but no name", args: []string{"addteacher", "-id", "t1"}, wantErr: errHelp},
		{name: "register", args: []string{"addteacher", "-id", "t1", "-name", "Mrs Kapoor"}},
		{name: "already registered", args: []string{"addteacher", "-id", "t1", "-name", "Mrs Kapoor"}, wantErrStr: subscription.ErrTeacherExists.Error()},
	}
	for _, tt := range tests {
		args := append([]string{"admin"}, tt.args...)

		t.Run(tt.name, func(t *testing.T) {
			tt.check(t, cli.run(args))
		})
	}

	teacher, err := env.Subscriptions.GetTeacher(context.Background(), "t1")
	require.NoError(t, err)
	assert.Equal(t, "Mrs Kapoor", teacher.Name)
	assert.Equal(t, subscription.StatusLocked, teacher.Status)
}

func Test_commandLine_addplan(t *testing.T) {
	cli, env, out := setup(t)

	tests := []cliTest{
		{name: "no args", args: []string{"addplan"}, wantErr: errHelp},
		{name: "bad price", args: []string{"addplan", "-name", "Basic", "-price", "lol"}, wantErrStr: "price must be a decimal number"},
		{name: "zero max batches", args: []string{"addplan", "-name", "Basic", "-price", "499", "-max-batches", "0"}, wantErrStr: "max_batches must be -1 (unlimited) or at least 1"},
		{name: "create", args: []string{"addplan", "-name", "Pro", "-price", "999.50", "-months", "3", "-max-batches", "-1", "-upi-id", "Coach@UPI", "-holder", "Coach"}},
	}
	for _, tt := range tests {
		args := append([]string{"admin"}, tt.args...)

		t.Run(tt.name, func(t *testing.T) {
			tt.check(t, cli.run(args))
		})
	}

	plans, err := env.Subscriptions.QueryPlans(context.Background())
	require.NoError(t, err)
	require.Len(t, plans, 1)
	assert.True(t, plans[0].Unlimited())
	assert.Equal(t, "coach@upi", plans[0].UPIID)
	assert.NotEmpty(t, plans[0].QRImageURL)
	assert.Contains(t, out.String(), "payment QR code: "+plans[0].QRImageURL)
}

func Test_commandLine_setstatus(t *testing.T) {
	cli, env, _ := setup(t)
	env.RegisterTeacher(t, "t1")

	tests := []cliTest{
		{name: "no args", args: []string{"setstatus"}, wantErr: errHelp},
		{name: "bad status", args: []string{"setstatus", "-teacher", "t1", "-status", "lol"}, wantErrStr: "overriding teacher status: status must be one of [active locked]"},
		{name: "activate", args: []string{"setstatus", "-teacher", "t1", "-status", "active"}},
	}
	for _, tt := range tests {
		args := append([]string{"admin"}, tt.args...)

		t.Run(tt.name, func(t *testing.T) {
			tt.check(t, cli.run(args))
		})
	}

	status, teacher, err := env.Subscriptions.EffectiveStatus(context.Background(), "t1")
	require.NoError(t, err)
	assert.Equal(t, subscription.StatusActive, status)
	assert.True(t, teacher.ManualOverride)
}

func Test_commandLine_report(t *testing.T) {
	cli, env, out := setup(t)
	ctx := context.Background()

	env.ActiveTeacher(t, "t1", 2)
	b := env.CreateBatch(t, "t1", "3000", 3)
	env.Enroll(t, b, "s1", "s2")
	p := env.Submit(t, b, "s1", 1, "1000")
	_, err := env.Payments.Approve(ctx, testutil.Teacher("t1"), b.ID, p.ID)
	require.NoError(t, err)

	tests := []cliTest{
		{name: "no args", args: []string{"report"}, wantErr: errHelp},
		{name: "unknown batch", args: []string{"report", "-batch", "lol"}, wantErrStr: core.NewNotFoundError("batch").Error()},
		{name: "report", args: []string{"report", "-batch", b.ID}},
	}
	for _, tt := range tests {
		args := append([]string{"admin"}, tt.args...)

		t.Run(tt.name, func(t *testing.T) {
			tt.check(t, cli.run(args))
		})
	}

	report := out.String()
	assert.Contains(t, report, "INSTALLMENT")
	assert.Contains(t, report, "1000.00")
	assert.Contains(t, report, "2000.00")
	assert.Contains(t, report, "50.00%")
	assert.Contains(t, report, "16.67%")
	assert.Contains(t, report, "5000.00")
}
