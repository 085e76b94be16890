// Package common holds steps shared by every feature: probing the service
// and asserting on the last HTTP response.
package common

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/cucumber/godog"
)

type TestContext interface {
	GET(path string, headers map[string]string) error
	GetResponseField(path string) (any, error)
	GetLastResponseStatus() int
	GetLastResponseBody() []byte
	GetLastResponseHeader(name string) string
	ResponseContains(text string) bool
}

func RegisterSteps(ctx *godog.ScenarioContext, tc TestContext) {
	s := &steps{tc: tc}

	ctx.Step(`^the payment service is running$`, s.serviceIsRunning)
	ctx.Step(`^the service readiness should be "([^"]*)"$`, s.readinessShouldBe)
	ctx.Step(`^I GET "([^"]*)"$`, s.get)

	ctx.Step(`^the response status should be (\d+)$`, s.statusShouldBe)
	ctx.Step(`^the response should contain "([^"]*)"$`, s.bodyShouldContain)
	ctx.Step(`^the response field "([^"]*)" should equal "([^"]*)"$`, s.fieldShouldEqual)
	ctx.Step(`^the response field "([^"]*)" should contain "([^"]*)"$`, s.fieldShouldContain)
	ctx.Step(`^the response header "([^"]*)" should be set$`, s.headerShouldBeSet)
	ctx.Step(`^log "([^"]*)"$`, s.log)
}

type steps struct {
	tc TestContext
}

func (s *steps) serviceIsRunning(context.Context) error {
	if err := s.tc.GET("/health/live", nil); err != nil {
		return err
	}
	if got := s.tc.GetLastResponseStatus(); got != http.StatusOK {
		return fmt.Errorf("liveness probe returned %d", got)
	}
	return nil
}

func (s *steps) readinessShouldBe(_ context.Context, want string) error {
	if err := s.tc.GET("/health/ready", nil); err != nil {
		return err
	}
	return s.fieldShouldEqual(context.Background(), "status", want)
}

func (s *steps) get(_ context.Context, path string) error {
	return s.tc.GET(path, nil)
}

func (s *steps) statusShouldBe(_ context.Context, want int) error {
	if got := s.tc.GetLastResponseStatus(); got != want {
		return fmt.Errorf("status: want %d, got %d\nbody: %s", want, got, s.tc.GetLastResponseBody())
	}
	return nil
}

func (s *steps) bodyShouldContain(_ context.Context, text string) error {
	if !s.tc.ResponseContains(text) {
		return fmt.Errorf("response lacks %q\nbody: %s", text, s.tc.GetLastResponseBody())
	}
	return nil
}

func (s *steps) fieldShouldEqual(_ context.Context, path, want string) error {
	got, err := s.tc.GetResponseField(path)
	if err != nil {
		return err
	}
	if fmt.Sprint(got) != want {
		return fmt.Errorf("%s: want %q, got %v", path, want, got)
	}
	return nil
}

func (s *steps) fieldShouldContain(_ context.Context, path, want string) error {
	got, err := s.tc.GetResponseField(path)
	if err != nil {
		return err
	}
	if !strings.Contains(fmt.Sprint(got), want) {
		return fmt.Errorf("%s: want it to contain %q, got %v", path, want, got)
	}
	return nil
}

func (s *steps) headerShouldBeSet(_ context.Context, name string) error {
	if s.tc.GetLastResponseHeader(name) == "" {
		return fmt.Errorf("response header %s missing", name)
	}
	return nil
}

func (s *steps) log(_ context.Context, message string) error {
	fmt.Println(message)
	return nil
}
