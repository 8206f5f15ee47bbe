package main

import (
	"context"
	"flag"
	"fmt"
	"time"

	"github.com/klingon-exchange/klingon-htlc/internal/monitor"
	"github.com/klingon-exchange/klingon-htlc/internal/storage"
)

func watchCmd(fs *flag.FlagSet) func(context.Context, *env) error {
	contractRef := fs.String("contract", "", "Watch only this contract (default: all funded contracts)")
	interval := fs.Duration("interval", monitor.DefaultPollInterval, "Poll interval")

	return func(ctx context.Context, e *env) error {
		store, err := e.Store()
		if err != nil {
			return err
		}
		b, err := e.Backend()
		if err != nil {
			return err
		}

		var contracts []*storage.Contract
		if *contractRef != "" {
			c, err := e.findContract(*contractRef)
			if err != nil {
				return err
			}
			contracts = append(contracts, c)
		} else {
			contracts, err = store.ListContracts(storage.ContractFunded, 0)
			if err != nil {
				return err
			}
		}
		if len(contracts) == 0 {
			fmt.Println("nothing to watch")
			return nil
		}

		m := monitor.New(&monitor.Config{
			Backend:      b,
			Store:        store,
			PollInterval: *interval,
			Logger:       e.log,
		})
		defer m.Stop()

		pending := 0
		for _, c := range contracts {
			if err := m.Watch(c); err != nil {
				e.log.Warn("Not watching contract", "contract", c.ID, "error", err)
				continue
			}
			pending++
		}

		for pending > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case ev := <-m.Events():
				pending--
				fmt.Printf("%s %s %s by %s",
					ev.Timestamp.Format(time.DateTime), ev.ContractID, ev.Outcome, ev.SpendTxID)
				if ev.Secret != nil {
					fmt.Printf(" secret %x", ev.Secret)
				}
				fmt.Println()
			}
		}
		return nil
	}
}
