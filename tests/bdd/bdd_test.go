//go:build bdd

// Package bdd runs the cucumber/godog scenarios in tests/bdd/features
// against the in-process engine. There is no external service to stand
// up: every step drives the canonicalizer, codecs, IR, and Token Memory
// packages directly.
//
//	go test -tags bdd -v ./tests/bdd/...
package bdd

import (
	"context"
	"os"
	"testing"

	"github.com/cucumber/godog"
	"github.com/cucumber/godog/colors"
)

func mkTempDir() (string, error) {
	return os.MkdirTemp("", "contex-bdd-*")
}

func TestFeatures(t *testing.T) {
	opts := godog.Options{
		Format:   "pretty",
		Output:   colors.Colored(os.Stdout),
		Paths:    []string{"features"},
		TestingT: t,
	}

	suite := godog.TestSuite{
		ScenarioInitializer: func(sc *godog.ScenarioContext) {
			cur := &current{}

			sc.Before(func(gctx context.Context, scn *godog.Scenario) (context.Context, error) {
				c, err := newCtx()
				if err != nil {
					return gctx, err
				}
				cur.c = c
				return gctx, nil
			})
			sc.After(func(gctx context.Context, scn *godog.Scenario, err error) (context.Context, error) {
				if cur.c != nil {
					cur.c.close()
				}
				return gctx, nil
			})

			registerSteps(sc, cur)
		},
		Options: &opts,
	}

	if suite.Run() != 0 {
		t.Fatal("BDD tests failed")
	}
}
