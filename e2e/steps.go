package e2e

import (
	"github.com/cucumber/godog"

	"eventpay/e2e/steps/common"
	"eventpay/e2e/steps/payment"
)

func RegisterSteps(sc *godog.ScenarioContext, tc *TestContext) {
	common.RegisterSteps(sc, tc)
	payment.RegisterSteps(sc, tc)
}
