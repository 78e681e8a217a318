package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/sixdof/pendant/internal/broadcast"
	"github.com/sixdof/pendant/internal/config"
	"github.com/sixdof/pendant/internal/kinematics"
	"github.com/sixdof/pendant/internal/motion"
	"github.com/sixdof/pendant/internal/motorlink"
	"github.com/sixdof/pendant/internal/posestate"
	"github.com/sixdof/pendant/internal/program"
)

// memProgramStore is an in-memory program.Store fake, sufficient for
// exercising the HTTP routes without a real database.
type memProgramStore struct {
	mu   sync.Mutex
	data map[string]program.Program
}

func newMemProgramStore() *memProgramStore {
	return &memProgramStore{data: make(map[string]program.Program)}
}

func (s *memProgramStore) Create(ctx context.Context, p program.Program) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[p.ID] = p
	return nil
}

func (s *memProgramStore) Replace(ctx context.Context, p program.Program) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.data[p.ID]; !ok {
		return program.ErrNotFound
	}
	s.data[p.ID] = p
	return nil
}

func (s *memProgramStore) Get(ctx context.Context, id string) (program.Program, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.data[id]
	if !ok {
		return program.Program{}, program.ErrNotFound
	}
	return p, nil
}

func (s *memProgramStore) List(ctx context.Context) ([]program.Program, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]program.Program, 0, len(s.data))
	for _, p := range s.data {
		out = append(out, p)
	}
	return out, nil
}

func (s *memProgramStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.data[id]; !ok {
		return program.ErrNotFound
	}
	delete(s.data, id)
	return nil
}

// memPoseStore is an in-memory posestate.SavedPoseStore fake.
type memPoseStore struct {
	mu   sync.Mutex
	data map[string]posestate.SavedPose
}

func newMemPoseStore() *memPoseStore {
	return &memPoseStore{data: make(map[string]posestate.SavedPose)}
}

func (s *memPoseStore) Create(ctx context.Context, p posestate.SavedPose) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[p.ID] = p
	return nil
}

func (s *memPoseStore) Get(ctx context.Context, id string) (posestate.SavedPose, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.data[id]
	if !ok {
		return posestate.SavedPose{}, posestate.ErrSavedPoseNotFound
	}
	return p, nil
}

func (s *memPoseStore) List(ctx context.Context) ([]posestate.SavedPose, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]posestate.SavedPose, 0, len(s.data))
	for _, p := range s.data {
		out = append(out, p)
	}
	return out, nil
}

func (s *memPoseStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.data[id]; !ok {
		return posestate.ErrSavedPoseNotFound
	}
	delete(s.data, id)
	return nil
}

func newTestServer(t *testing.T) (*httptest.Server, *memProgramStore, *memPoseStore) {
	t.Helper()

	cfg := config.DefaultConfig()
	cfg.SimulationMode = true
	cfg.UpdateInterval = 5 * time.Millisecond

	log := logrus.New()
	log.SetOutput(new(bytes.Buffer))

	state := posestate.New(cfg.DefaultPose, cfg.Dimensions)
	link := motorlink.New(nil, cfg.Serial.CommandDelay, true, log, nil)
	bus := broadcast.New(16, log)
	controller := motion.New(cfg, state, link, bus, log, nil)
	t.Cleanup(controller.Close)

	engine := program.New(controller, state, link, bus, true, log)

	progStore := newMemProgramStore()
	poseStore := newMemPoseStore()

	deps := Deps{
		Controller:   controller,
		Engine:       engine,
		State:        state,
		Bus:          bus,
		ProgramStore: progStore,
		PoseStore:    poseStore,
	}

	srv := NewServer(DefaultConfig(), deps, log)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	return ts, progStore, poseStore
}

func TestHealthEndpoint(t *testing.T) {
	ts, _, _ := newTestServer(t)

	resp, err := http.Get(ts.URL + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
}

func TestCreateAndGetProgramRoundTrips(t *testing.T) {
	ts, _, _ := newTestServer(t)

	body, _ := json.Marshal(program.Program{
		Name: "wave",
		Steps: []program.Step{
			{Type: program.StepWait, Seconds: 0.1},
		},
	})
	resp, err := http.Post(ts.URL+"/api/programs/", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("create program: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}
	var created program.Program
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		t.Fatalf("decode created program: %v", err)
	}
	if created.ID == "" {
		t.Fatal("expected server-assigned ID")
	}

	getResp, err := http.Get(ts.URL + "/api/programs/" + created.ID)
	if err != nil {
		t.Fatalf("get program: %v", err)
	}
	defer getResp.Body.Close()
	if getResp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", getResp.StatusCode)
	}
}

func TestGetUnknownProgramReturnsNotFound(t *testing.T) {
	ts, _, _ := newTestServer(t)

	resp, err := http.Get(ts.URL + "/api/programs/does-not-exist")
	if err != nil {
		t.Fatalf("get program: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}

func TestMoveJRejectsOutOfLimitJoint(t *testing.T) {
	ts, _, _ := newTestServer(t)

	body, _ := json.Marshal(moveJRequest{
		JointPositions: kinematics.JointVector{BaseRotation: 999},
		VelocityPct:    50,
	})
	resp, err := http.Post(ts.URL+"/api/motion/move-j", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("move-j: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for out-of-limit joint, got %d", resp.StatusCode)
	}
}

func TestSaveAndListCurrentPose(t *testing.T) {
	ts, _, poseStore := newTestServer(t)

	body, _ := json.Marshal(savePoseRequest{Name: "pick"})
	resp, err := http.Post(ts.URL+"/api/saved-poses/", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("save pose: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}

	poses, err := poseStore.List(context.Background())
	if err != nil {
		t.Fatalf("list poses: %v", err)
	}
	if len(poses) != 1 || poses[0].Name != "pick" {
		t.Fatalf("expected one saved pose named pick, got %+v", poses)
	}
}
