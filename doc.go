/*
Package flowline is a scenario state machine and migration engine for
multi-tenant conversational agents. It tracks which step of which versioned
workflow graph every conversation is in, and reconciles live sessions when
operators edit a graph mid-flight.

# Concept

Operators author scenarios as versioned step graphs. Sessions advance through
a graph turn by turn; when a new graph version is published, flowline diffs
the versions into a reviewed migration plan and applies the right action the
next time each parked session speaks: continue in place, collect data a new
step would have gathered, teleport onto a branch the session would have taken
under the new rules, relocate off a deleted step, or run a required action
the session skipped past. Completed irreversible steps (checkpoints) are
never crossed backwards.

Scoring of transitions and extraction of field values from conversation are
ports; flowline never calls a model itself.

# Usage

	package main

	import (
		"context"
		"log"

		"github.com/mroche14/flowline"
		"github.com/mroche14/flowline/pkg/domain"
	)

	func main() {
		eng, err := flowline.New()
		if err != nil {
			log.Fatal(err)
		}

		ctx := context.Background()
		if _, err := eng.PublishFile(ctx, "scenarios/support.v1.yaml"); err != nil {
			log.Fatal(err)
		}

		key := domain.SessionKey{Tenant: "acme", Agent: "bot", Interlocutor: "u1", Channel: "web"}
		result, _, err := eng.ProcessTurn(ctx, key, flowline.TurnInput{
			EntryCandidates: map[string]float64{"support": 0.9},
		})
		if err != nil {
			log.Fatal(err)
		}
		log.Println("verdict:", result.Type)
	}

Production deployments swap the in-memory defaults for the redis session and
fact stores and the postgres graph store through options.
*/
package flowline
