package main

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/trezcool/feedesk/core"
	"github.com/trezcool/feedesk/core/subscription"
)

func (cli *commandLine) addTeacher(id, name string) error {
	t, err := cli.subs.RegisterTeacher(context.Background(), cliCaller, subscription.NewTeacher{ID: id, Name: name})
	if err != nil {
		return err
	}
	fmt.Fprintf(cli.output(), "teacher %s registered (%s)\n", t.ID, t.Status)
	return nil
}

func (cli *commandLine) addPlan(name, price string, months, maxBatches int, upiID, holder string) error {
	amount, err := decimal.NewFromString(price)
	if err != nil {
		return core.NewFieldError("price", "price must be a decimal number")
	}
	plan, err := cli.subs.CreatePlan(context.Background(), cliCaller, subscription.NewPlan{
		Name:           core.CleanString(name),
		Price:          amount,
		DurationMonths: months,
		MaxBatches:     maxBatches,
		AccountHolder:  core.CleanString(holder),
		UPIID:          core.CleanString(upiID, true /* lower */),
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(cli.output(), "plan %s created: %s for %d month(s)\n", plan.ID, plan.Price.StringFixed(core.MoneyPlaces), plan.DurationMonths)
	if plan.QRImageURL != "" {
		fmt.Fprintf(cli.output(), "payment QR code: %s\n", plan.QRImageURL)
	}
	return nil
}

func (cli *commandLine) setStatus(teacherID string, status subscription.Status) error {
	t, err := cli.subs.OverrideStatus(context.Background(), cliCaller, teacherID, status)
	if err != nil {
		return errors.Wrap(err, "overriding teacher status")
	}
	fmt.Fprintf(cli.output(), "teacher %s is now %s (manual override)\n", t.ID, t.Status)
	return nil
}
