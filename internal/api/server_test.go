package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/celestiaorg/testbed/internal/compute"
	"github.com/celestiaorg/testbed/internal/config"
	"github.com/celestiaorg/testbed/internal/db/models"
	"github.com/celestiaorg/testbed/internal/db/repos"
	"github.com/celestiaorg/testbed/internal/metrics"
	"github.com/celestiaorg/testbed/internal/services"
	"github.com/celestiaorg/testbed/internal/ssh"
	"github.com/celestiaorg/testbed/internal/testbed"
	"github.com/celestiaorg/testbed/internal/types"
	"github.com/celestiaorg/testbed/pkg/api/v1/routes"
)

type ServerTestSuite struct {
	suite.Suite
	app  *fiber.App
	fake *compute.FakeProvider
}

func TestServerTestSuite(t *testing.T) {
	suite.Run(t, new(ServerTestSuite))
}

func (s *ServerTestSuite) SetupTest() {
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	s.Require().NoError(err)
	s.Require().NoError(db.AutoMigrate(&models.Operation{}))

	pair, err := ssh.EnsureKeyPair(s.T().TempDir())
	s.Require().NoError(err)
	settings := &config.Settings{
		TestbedID:         "api",
		CloudProvider:     compute.ProviderFake,
		SSHPrivateKeyFile: pair.PrivateKeyPath,
		SSHPublicKeyFile:  pair.PublicKeyPath,
		Regions:           []string{"A", "B"},
	}

	s.fake = compute.NewFakeProvider()
	engine, err := testbed.New(context.Background(), settings, s.fake,
		testbed.WithSSHChecker(&ssh.MockChecker{}),
		testbed.WithPollInterval(time.Millisecond),
		testbed.WithStopPollInterval(time.Millisecond),
	)
	s.Require().NoError(err)

	m := metrics.New()
	svc := services.NewTestbedService(engine, repos.NewOperationRepository(db), m)
	s.app = NewApp(svc, m)
}

// do sends a request and decodes the JSON body into v when v is not nil
func (s *ServerTestSuite) do(method, target, body string, v interface{}) int {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := s.app.Test(req, -1)
	s.Require().NoError(err)
	defer resp.Body.Close()

	if v != nil {
		s.Require().NoError(json.NewDecoder(resp.Body).Decode(v))
	}
	return resp.StatusCode
}

func (s *ServerTestSuite) TestHealthCheck() {
	var body map[string]string
	s.Equal(http.StatusOK, s.do(http.MethodGet, routes.HealthCheckURL(), "", &body))
	s.Equal("healthy", body["status"])
}

func (s *ServerTestSuite) TestLifecycle() {
	var resp struct {
		Slug types.Slug       `json:"slug"`
		Data models.Operation `json:"data"`
	}
	s.Equal(http.StatusOK, s.do(http.MethodPost, routes.DeployURL(), `{"quantity":2}`, &resp))
	s.Equal(types.SuccessSlug, resp.Slug)
	s.Equal(models.ActionDeploy, resp.Data.Action)
	s.Equal(models.OperationStatusCompleted, resp.Data.Status)
	s.Equal(4, resp.Data.Instances)

	s.Equal(http.StatusOK, s.do(http.MethodPost, routes.StartURL(), `{"quantity":1}`, &resp))
	s.Equal(models.ActionStart, resp.Data.Action)

	var instances types.ListResponse[types.Instance]
	s.Equal(http.StatusOK, s.do(http.MethodGet, routes.InstancesURL(), "", &instances))
	s.Len(instances.Rows, 4)
	active := 0
	for _, instance := range instances.Rows {
		if instance.IsActive() {
			active++
		}
	}
	s.Equal(2, active)

	var status struct {
		Data testbed.Status `json:"data"`
	}
	s.Equal(http.StatusOK, s.do(http.MethodGet, routes.StatusURL(), "", &status))
	s.Equal(compute.ProviderFake, status.Data.Provider)
	s.Equal(2, status.Data.Active)

	s.Equal(http.StatusOK, s.do(http.MethodPost, routes.StopURL(), "", &resp))
	s.Equal(http.StatusOK, s.do(http.MethodPost, routes.RefreshURL(), "", &resp))
	s.Equal(http.StatusOK, s.do(http.MethodDelete, routes.DestroyURL(), "", &resp))
	s.Equal(0, resp.Data.Instances)

	var history types.ListResponse[models.Operation]
	s.Equal(http.StatusOK, s.do(http.MethodGet, routes.OperationsURL(nil), "", &history))
	s.Len(history.Rows, 5)
	s.Equal(models.ActionDestroy, history.Rows[0].Action)
}

func (s *ServerTestSuite) TestStart_InsufficientCapacity() {
	s.Equal(http.StatusOK, s.do(http.MethodPost, routes.DeployURL(), `{"quantity":1}`, nil))

	var resp struct {
		Slug  types.Slug        `json:"slug"`
		Error string            `json:"error"`
		Data  []testbed.Deficit `json:"data"`
	}
	s.Equal(http.StatusConflict, s.do(http.MethodPost, routes.StartURL(), `{"quantity":3}`, &resp))
	s.Equal(types.InsufficientCapacitySlug, resp.Slug)
	s.Equal([]testbed.Deficit{{Region: "A", Missing: 2}, {Region: "B", Missing: 2}}, resp.Data)
	s.Contains(resp.Error, "insufficient capacity")
}

func (s *ServerTestSuite) TestValidation() {
	var resp types.SlugResponse
	s.Equal(http.StatusBadRequest, s.do(http.MethodPost, routes.DeployURL(), `{"quantity":-1}`, &resp))
	s.Equal(types.InvalidInputSlug, resp.Slug)

	s.Equal(http.StatusBadRequest, s.do(http.MethodPost, routes.DeployURL(), `{}`, &resp))
	s.Equal("Quantity is required", resp.Error)

	s.Equal(http.StatusBadRequest, s.do(http.MethodPost, routes.StartURL(), `{not json`, &resp))

	s.Equal(http.StatusBadRequest, s.do(http.MethodGet, routes.OperationsURL(map[string][]string{"action": {"reboot"}}), "", &resp))
	s.Equal(http.StatusBadRequest, s.do(http.MethodGet, routes.OperationsURL(map[string][]string{"limit": {"-1"}}), "", &resp))
}

func (s *ServerTestSuite) TestProviderFailure() {
	s.fake.SimulateAuthenticationFailure()

	var resp types.SlugResponse
	s.Equal(http.StatusInternalServerError, s.do(http.MethodPost, routes.RefreshURL(), "", &resp))
	s.Equal(types.ServerErrorSlug, resp.Slug)

	var history types.ListResponse[models.Operation]
	s.Equal(http.StatusOK, s.do(http.MethodGet, routes.OperationsURL(map[string][]string{"status": {"failed"}}), "", &history))
	s.Len(history.Rows, 1)
}

func (s *ServerTestSuite) TestMetrics() {
	s.Equal(http.StatusOK, s.do(http.MethodPost, routes.DeployURL(), `{"quantity":1}`, nil))

	req := httptest.NewRequest(http.MethodGet, routes.MetricsURL(), nil)
	resp, err := s.app.Test(req, -1)
	s.Require().NoError(err)
	defer resp.Body.Close()
	s.Equal(http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	s.Require().NoError(err)
	s.Contains(string(body), `testbed_instances{power_status="inactive",region="A"} 1`)
	s.Contains(string(body), `testbed_operation_duration_seconds_count{action="deploy",status="completed"} 1`)
}

func (s *ServerTestSuite) TestUnknownRoute() {
	var resp types.SlugResponse
	s.Equal(http.StatusNotFound, s.do(http.MethodGet, "/api/v1/unknown", "", &resp))
	s.Equal(types.InvalidInputSlug, resp.Slug)
}
