package e2e

import (
	"github.com/cucumber/godog"

	"calibra/e2e/steps/calibration"
	"calibra/e2e/steps/common"
)

// RegisterSteps registers all step definitions from modular packages
func RegisterSteps(ctx *godog.ScenarioContext, tc *TestContext) {
	// Register common steps (background, generic requests, assertions)
	common.RegisterSteps(ctx, tc)

	// Register calibration-specific steps
	calibration.RegisterSteps(ctx, tc)
}
