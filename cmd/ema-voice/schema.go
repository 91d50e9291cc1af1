package main

import (
	"encoding/json"
	"fmt"

	"github.com/invopop/jsonschema"
	"github.com/spf13/cobra"

	"github.com/koscakluka/ema-voice/core/events"
)

func newSchemaCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "schema [event kind]",
		Short: "Print the JSON schema of event payloads",
		Long:  "Prints the JSON schema of every event payload sent to clients, or of a single event kind.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			schemas, err := eventSchemas()
			if err != nil {
				return err
			}

			var out any = schemas
			if len(args) == 1 {
				schema, ok := schemas[events.Kind(args[0])]
				if !ok {
					return fmt.Errorf("unknown event kind %q", args[0])
				}
				out = schema
			}

			encoder := json.NewEncoder(cmd.OutOrStdout())
			encoder.SetIndent("", "  ")
			return encoder.Encode(out)
		},
	}
}

func eventPayloads() map[events.Kind]any {
	return map[events.Kind]any{
		events.KindStateChange: events.StateChangePayload{},
		events.KindTranscript:  events.TextPayload{},
		events.KindResponse:    events.TextPayload{},
		events.KindAudio:       events.AudioPayload{},
		events.KindError:       events.ErrorPayload{},
		events.KindDone:        events.DonePayload{},
	}
}

func eventSchemas() (map[events.Kind]*jsonschema.Schema, error) {
	reflector := jsonschema.Reflector{DoNotReference: true}

	payloads := eventPayloads()
	schemas := make(map[events.Kind]*jsonschema.Schema, len(payloads))
	for _, kind := range events.Kinds() {
		payload, ok := payloads[kind]
		if !ok {
			return nil, fmt.Errorf("no payload registered for %s events", kind)
		}
		schemas[kind] = reflector.Reflect(payload)
	}
	return schemas, nil
}
