package main

import (
	"context"
	"fmt"
	"time"

	"reorder-service/internal/config"

	"github.com/spf13/cobra"
)

var testCmd = &cobra.Command{
	Use:   "test",
	Short: "Probe connectivity to Grocy, Home Assistant and Telegram",
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := buildRuntime()
		if err != nil {
			return err
		}
		defer rt.close()

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		failed := 0
		for name, probe := range rt.probes() {
			if err := probe.TestConnection(ctx); err != nil {
				failed++
				fmt.Printf("❌ %s: %v\n", name, err)
				continue
			}
			fmt.Printf("✅ %s: ok\n", name)
		}

		// Mode-specific entity checks
		switch rt.cfg.OrderMode {
		case config.ModeVoiceOrder:
			if !rt.hass.CheckAlexaAvailable(ctx) {
				failed++
				fmt.Printf("❌ alexa entity: unavailable\n")
			} else {
				fmt.Printf("✅ alexa entity: available\n")
			}
		case config.ModeShoppingList:
			if !rt.hass.CheckShoppingListAvailable(ctx) {
				failed++
				fmt.Printf("❌ shopping list entity: unavailable\n")
			} else {
				fmt.Printf("✅ shopping list entity: available\n")
			}
		}

		if failed > 0 {
			return fmt.Errorf("%d connectivity check(s) failed", failed)
		}
		return nil
	},
}
