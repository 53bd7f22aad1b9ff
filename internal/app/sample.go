package app

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"farewatch/internal/storage"
)

// SamplePass runs one sampling pass and prints the JSON run summary.
func (a *App) SamplePass(ctx context.Context, mode storage.Mode) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	smp := a.newSampler(store, a.newSource())

	summary, err := smp.Run(ctx, mode)
	if err != nil {
		return err
	}

	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(summary); err != nil {
		return fmt.Errorf("encode run summary: %w", err)
	}
	return nil
}

// DispatchOnce runs one dispatcher sweep and prints the result.
func (a *App) DispatchOnce(ctx context.Context) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	dsp := a.newDispatcher(store, a.newChannel())

	result, err := dsp.Sweep(ctx)
	if err != nil {
		return err
	}

	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(result); err != nil {
		return fmt.Errorf("encode sweep result: %w", err)
	}
	return nil
}
