package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/dohr-michael/studio/internal/assets"
	"github.com/dohr-michael/studio/internal/events"
	"github.com/dohr-michael/studio/internal/gateway/ws"
	"github.com/dohr-michael/studio/internal/genai"
	"github.com/dohr-michael/studio/internal/storage"
	"github.com/dohr-michael/studio/internal/storyboard"
	"github.com/dohr-michael/studio/internal/tasks"
)

type stubMedia struct{}

func (stubMedia) GenerateImage(context.Context, genai.ImageRequest) (genai.Media, error) {
	return genai.Media{Data: []byte("png"), MIMEType: "image/png"}, nil
}

func (stubMedia) Synthesize(context.Context, genai.SpeechRequest) (genai.Media, error) {
	return genai.Media{Data: []byte("wav"), MIMEType: "audio/wav"}, nil
}

func (stubMedia) GenerateVideo(context.Context, genai.VideoRequest) (genai.Media, error) {
	return genai.Media{Data: []byte("mp4"), MIMEType: "video/mp4"}, nil
}

type testEnv struct {
	srv    *Server
	bus    *events.Bus
	reg    *tasks.Registry
	boards *storyboard.Store
	assets *assets.Local
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	bus := events.NewBus(64)
	t.Cleanup(bus.Close)

	reg := tasks.NewRegistry(tasks.RegistryConfig{Store: tasks.NewStore(storage.NewMemory()), Bus: bus})
	t.Cleanup(reg.Dispose)

	boards := storyboard.NewStore(storage.NewMemory())
	local := assets.NewLocal(t.TempDir(), "/assets")
	pipeline := storyboard.NewPipeline(storyboard.ProductionConfig{
		Store:  boards,
		Assets: local,
		Images: stubMedia{},
		Voices: stubMedia{},
		Videos: stubMedia{},
		Bus:    bus,
	})

	srv := NewServer(Config{
		Host:               "localhost",
		Bus:                bus,
		Tasks:              reg,
		Pipeline:           pipeline,
		Assets:             local,
		AssetsBaseURL:      "/assets",
		DefaultStyle:       "cinematic",
		DefaultAspectRatio: "16:9",
	})
	t.Cleanup(srv.hub.Close)
	return &testEnv{srv: srv, bus: bus, reg: reg, boards: boards, assets: local}
}

func (e *testEnv) do(t *testing.T, method, path, contentType, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	w := httptest.NewRecorder()
	e.srv.Handler().ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(w.Body).Decode(&v); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	return v
}

func (e *testEnv) createBoard(t *testing.T, sb *storyboard.Storyboard) *storyboard.Storyboard {
	t.Helper()
	if err := e.boards.Create(context.Background(), sb); err != nil {
		t.Fatal(err)
	}
	return sb
}

func (e *testEnv) waitTask(t *testing.T, id string) *tasks.Task {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		task, err := e.reg.Get(id)
		if err == nil && task.Status.Terminal() {
			return task
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("task %s did not finish", id)
	return nil
}

func waitForEvents(bus *events.Bus, n int) {
	for i := 0; i < 200; i++ {
		if len(bus.History(100)) >= n {
			return
		}
		runtime.Gosched()
		time.Sleep(time.Millisecond)
	}
}

func TestHealth(t *testing.T) {
	e := newTestEnv(t)
	w := e.do(t, http.MethodGet, "/api/health", "", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200", w.Code)
	}
	if body := decode[map[string]any](t, w); body["status"] != "ok" {
		t.Errorf("body: %v", body)
	}
}

func TestEvents(t *testing.T) {
	e := newTestEnv(t)

	w := e.do(t, http.MethodGet, "/api/events", "", "")
	if body := decode[[]any](t, w); len(body) != 0 {
		t.Fatalf("expected empty history, got %d", len(body))
	}

	for i := 0; i < 6; i++ {
		related := "sb_a"
		if i%2 == 1 {
			related = "sb_b"
		}
		e.bus.Publish(events.NewTypedEventWithRelated(events.SourceTask, events.TaskProgressPayload{TaskID: "t", Progress: i}, related))
	}
	waitForEvents(e.bus, 6)

	if body := decode[[]events.Event](t, e.do(t, http.MethodGet, "/api/events?limit=4", "", "")); len(body) != 4 {
		t.Errorf("limit: got %d events, want 4", len(body))
	}
	body := decode[[]events.Event](t, e.do(t, http.MethodGet, "/api/events?related_id=sb_b", "", ""))
	if len(body) != 3 {
		t.Errorf("related filter: got %d events, want 3", len(body))
	}
	if w := e.do(t, http.MethodGet, "/api/events?limit=x", "", ""); w.Code != http.StatusBadRequest {
		t.Errorf("bad limit: got %d", w.Code)
	}
}

func TestTasks_ListGetCancel(t *testing.T) {
	e := newTestEnv(t)

	release := make(chan struct{})
	defer close(release)
	id, err := e.reg.Enqueue(tasks.JobFunc{Type: tasks.TypeImage, Name: "block", Fn: func(ctx context.Context, _ tasks.ProgressFunc) (any, error) {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-release:
			return nil, nil
		}
	}}, "sb_1")
	if err != nil {
		t.Fatal(err)
	}

	list := decode[[]tasks.Task](t, e.do(t, http.MethodGet, "/api/tasks", "", ""))
	if len(list) != 1 || list[0].ID != id {
		t.Fatalf("list: %+v", list)
	}
	if got := decode[[]tasks.Task](t, e.do(t, http.MethodGet, "/api/tasks?related_id=other", "", "")); len(got) != 0 {
		t.Errorf("related filter: got %d", len(got))
	}
	if got := decode[[]tasks.Task](t, e.do(t, http.MethodGet, "/api/tasks/active", "", "")); len(got) != 1 {
		t.Errorf("active: got %d", len(got))
	}

	w := e.do(t, http.MethodPost, "/api/tasks/"+id+"/cancel", "", "")
	if w.Code != http.StatusOK {
		t.Fatalf("cancel: got %d", w.Code)
	}
	cancelled := decode[tasks.Task](t, w)
	if cancelled.Status != tasks.TaskFailed || cancelled.Error != tasks.ErrCancelled.Error() {
		t.Errorf("cancelled task: %+v", cancelled)
	}

	if w := e.do(t, http.MethodGet, "/api/tasks/task_nope", "", ""); w.Code != http.StatusNotFound {
		t.Errorf("missing task: got %d", w.Code)
	}
	if w := e.do(t, http.MethodPost, "/api/tasks/task_nope/cancel", "", ""); w.Code != http.StatusNotFound {
		t.Errorf("cancel missing task: got %d", w.Code)
	}

	e.waitTask(t, id)
	for e.reg.Executing(id) {
		time.Sleep(time.Millisecond)
	}
	w = e.do(t, http.MethodDelete, "/api/tasks/completed", "", "")
	if got := decode[map[string]int](t, w); got["deleted"] != 1 {
		t.Errorf("clear: %v", got)
	}
}

func TestStoryboards_CRUD(t *testing.T) {
	e := newTestEnv(t)

	w := e.do(t, http.MethodPost, "/api/storyboards", "application/json",
		`{"title":"Harbor","scenes":[{"description":"dawn"}]}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("create: got %d %s", w.Code, w.Body)
	}
	created := decode[storyboard.Storyboard](t, w)
	if created.ID == "" || created.Style != "cinematic" || created.AspectRatio != "16:9" {
		t.Errorf("created: %+v", created)
	}

	yamlDoc := "title: Docks\nscenes:\n  - description: night\n"
	if w := e.do(t, http.MethodPost, "/api/storyboards", "application/yaml", yamlDoc); w.Code != http.StatusCreated {
		t.Fatalf("create yaml: got %d %s", w.Code, w.Body)
	}

	if w := e.do(t, http.MethodPost, "/api/storyboards", "application/json", `{"scenes":[]}`); w.Code != http.StatusBadRequest {
		t.Errorf("missing title: got %d", w.Code)
	}
	if w := e.do(t, http.MethodPost, "/api/storyboards", "application/json", `{`); w.Code != http.StatusBadRequest {
		t.Errorf("bad json: got %d", w.Code)
	}

	list := decode[[]storyboard.Storyboard](t, e.do(t, http.MethodGet, "/api/storyboards", "", ""))
	if len(list) != 2 {
		t.Errorf("list: got %d", len(list))
	}

	w = e.do(t, http.MethodPut, "/api/storyboards/"+created.ID, "application/json",
		`{"title":"Harbor v2","scenes":[{"description":"dawn"},{"description":"noon"}]}`)
	if w.Code != http.StatusOK {
		t.Fatalf("replace: got %d %s", w.Code, w.Body)
	}
	got := decode[storyboard.Storyboard](t, e.do(t, http.MethodGet, "/api/storyboards/"+created.ID, "", ""))
	if got.Title != "Harbor v2" || len(got.Scenes) != 2 || got.CreatedAt != created.CreatedAt {
		t.Errorf("after replace: %+v", got)
	}

	if w := e.do(t, http.MethodPut, "/api/storyboards/sb_nope", "application/json", `{"title":"x"}`); w.Code != http.StatusNotFound {
		t.Errorf("replace missing: got %d", w.Code)
	}
	if w := e.do(t, http.MethodDelete, "/api/storyboards/"+created.ID, "", ""); w.Code != http.StatusNoContent {
		t.Errorf("delete: got %d", w.Code)
	}
	if w := e.do(t, http.MethodGet, "/api/storyboards/"+created.ID, "", ""); w.Code != http.StatusNotFound {
		t.Errorf("get deleted: got %d", w.Code)
	}
}

func TestProduce_EnqueuesTaskAndServesAssets(t *testing.T) {
	e := newTestEnv(t)
	sb := e.createBoard(t, &storyboard.Storyboard{
		Title:  "Harbor",
		Scenes: []storyboard.Scene{{Description: "dawn"}, {Description: "noon"}},
	})

	w := e.do(t, http.MethodPost, "/api/storyboards/"+sb.ID+"/produce", "", "")
	if w.Code != http.StatusAccepted {
		t.Fatalf("produce: got %d %s", w.Code, w.Body)
	}
	accepted := decode[taskAccepted](t, w)

	task := e.waitTask(t, accepted.TaskID)
	if task.Status != tasks.TaskCompleted || task.RelatedID != sb.ID || task.Type != tasks.TypeStoryboard {
		t.Fatalf("task: %+v", task)
	}

	produced, err := e.boards.Get(context.Background(), sb.ID)
	if err != nil {
		t.Fatal(err)
	}
	frame := produced.Scenes[0].FrameImage
	if !strings.HasPrefix(frame, "/assets/") {
		t.Fatalf("frame uri: %q", frame)
	}

	w = e.do(t, http.MethodGet, frame, "", "")
	if w.Code != http.StatusOK || w.Body.String() != "png" || w.Header().Get("Content-Type") != "image/png" {
		t.Errorf("asset: %d %q %q", w.Code, w.Body, w.Header().Get("Content-Type"))
	}
	if w := e.do(t, http.MethodGet, "/assets/nope/missing.png", "", ""); w.Code != http.StatusNotFound {
		t.Errorf("missing asset: got %d", w.Code)
	}

	if w := e.do(t, http.MethodPost, "/api/storyboards/sb_nope/produce", "", ""); w.Code != http.StatusNotFound {
		t.Errorf("produce missing: got %d", w.Code)
	}
}

func TestProduce_RejectsWhileInProduction(t *testing.T) {
	e := newTestEnv(t)
	sb := e.createBoard(t, &storyboard.Storyboard{
		Title:  "Harbor",
		Scenes: []storyboard.Scene{{Description: "dawn"}, {Description: "noon"}},
	})

	release := make(chan struct{})
	busyID, err := e.reg.Enqueue(tasks.JobFunc{Type: tasks.TypeStoryboard, Name: "busy", Fn: func(ctx context.Context, _ tasks.ProgressFunc) (any, error) {
		select {
		case <-release:
		case <-ctx.Done():
		}
		return nil, nil
	}}, sb.ID)
	if err != nil {
		t.Fatal(err)
	}

	path := "/api/storyboards/" + sb.ID + "/produce"
	if w := e.do(t, http.MethodPost, path, "", ""); w.Code != http.StatusConflict {
		t.Fatalf("produce while busy: got %d %s, want 409", w.Code, w.Body)
	}

	// Other task types on the same storyboard do not block production.
	close(release)
	e.waitTask(t, busyID)
	if _, err := e.reg.Enqueue(tasks.JobFunc{Type: tasks.TypeImage, Name: "frame", Fn: func(ctx context.Context, _ tasks.ProgressFunc) (any, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}}, sb.ID); err != nil {
		t.Fatal(err)
	}

	w := e.do(t, http.MethodPost, path, "", "")
	if w.Code != http.StatusAccepted {
		t.Fatalf("produce after release: got %d %s", w.Code, w.Body)
	}
	e.waitTask(t, decode[taskAccepted](t, w).TaskID)
}

func TestRegenerateScene_Validation(t *testing.T) {
	e := newTestEnv(t)
	sb := e.createBoard(t, &storyboard.Storyboard{
		Title:  "Harbor",
		Scenes: []storyboard.Scene{{Description: "dawn"}, {Description: "noon"}},
	})
	base := "/api/storyboards/" + sb.ID + "/scenes/"

	cases := map[string]int{
		base + "0/image": http.StatusAccepted,
		base + "1/video": http.StatusBadRequest,
		base + "5/image": http.StatusBadRequest,
		base + "x/image": http.StatusBadRequest,
		base + "0/smell": http.StatusBadRequest,
		base + "0/audio": http.StatusBadRequest, // no dialogue
	}
	for path, want := range cases {
		if w := e.do(t, http.MethodPost, path, "", ""); w.Code != want {
			t.Errorf("%s: got %d, want %d", path, w.Code, want)
		}
	}
}

func TestPortraitAndScript(t *testing.T) {
	e := newTestEnv(t)
	sb := e.createBoard(t, &storyboard.Storyboard{
		Title:      "Harbor",
		Characters: []storyboard.Character{{ID: "c1", Name: "Mara"}},
	})

	w := e.do(t, http.MethodPost, "/api/storyboards/"+sb.ID+"/characters/c1/portrait", "", "")
	if w.Code != http.StatusAccepted {
		t.Fatalf("portrait: got %d %s", w.Code, w.Body)
	}
	task := e.waitTask(t, decode[taskAccepted](t, w).TaskID)
	if task.Status != tasks.TaskCompleted || task.Type != tasks.TypeCharacter {
		t.Errorf("portrait task: %+v", task)
	}

	if w := e.do(t, http.MethodPost, "/api/storyboards/"+sb.ID+"/characters/ghost/portrait", "", ""); w.Code != http.StatusNotFound {
		t.Errorf("unknown character: got %d", w.Code)
	}
	if w := e.do(t, http.MethodPost, "/api/storyboards/"+sb.ID+"/script", "application/json", `{}`); w.Code != http.StatusBadRequest {
		t.Errorf("script without premise: got %d", w.Code)
	}

	// no text generator is configured, so the task fails but is still accepted
	w = e.do(t, http.MethodPost, "/api/storyboards/"+sb.ID+"/script", "application/json", `{"premise":"a rescue"}`)
	if w.Code != http.StatusAccepted {
		t.Fatalf("script: got %d", w.Code)
	}
	task = e.waitTask(t, decode[taskAccepted](t, w).TaskID)
	if task.Status != tasks.TaskFailed || !strings.Contains(task.Error, "text generator") {
		t.Errorf("script task: %+v", task)
	}
}

func TestWebSocket(t *testing.T) {
	e := newTestEnv(t)
	sb := e.createBoard(t, &storyboard.Storyboard{Title: "Harbor", Scenes: []storyboard.Scene{{Description: "dawn"}}})

	hs := httptest.NewServer(e.srv.Handler())
	defer hs.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(hs.URL, "http")+"/api/ws", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	send := func(f ws.Frame) {
		data, _ := ws.MarshalFrame(f)
		if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	seen := map[string]bool{}
	// next returns the response to id. Event frames read on the way are recorded.
	next := func(id string) ws.Frame {
		for {
			_, data, err := conn.Read(ctx)
			if err != nil {
				t.Fatalf("read: %v", err)
			}
			f, err := ws.UnmarshalFrame(data)
			if err != nil {
				t.Fatal(err)
			}
			if f.Type == ws.FrameTypeEvent {
				if f.RelatedID != sb.ID {
					t.Fatalf("filtered feed leaked %q", f.RelatedID)
				}
				seen[f.Event] = true
				continue
			}
			if f.ID == id {
				return f
			}
		}
	}

	send(ws.Frame{Type: ws.FrameTypeRequest, ID: "1", Method: ws.MethodSubscribe, Params: json.RawMessage(`{"related_id":"` + sb.ID + `"}`)})
	if f := next("1"); f.OK == nil || !*f.OK {
		t.Fatalf("subscribe: %+v", f)
	}

	send(ws.Frame{Type: ws.FrameTypeRequest, ID: "2", Method: ws.MethodProduce, Params: json.RawMessage(`{"id":"` + sb.ID + `"}`)})
	f := next("2")
	if f.OK == nil || !*f.OK {
		t.Fatalf("produce: %+v", f)
	}
	var accepted taskAccepted
	if err := json.Unmarshal(f.Payload, &accepted); err != nil || accepted.TaskID == "" {
		t.Fatalf("payload: %s", f.Payload)
	}

	// the subscribed feed delivers the task's completion
	for !seen[string(events.EventTaskCompleted)] {
		_, data, err := conn.Read(ctx)
		if err != nil {
			t.Fatalf("waiting for completion: %v", err)
		}
		ev, _ := ws.UnmarshalFrame(data)
		if ev.Type != ws.FrameTypeEvent {
			continue
		}
		if ev.RelatedID != sb.ID {
			t.Fatalf("filtered feed leaked %q", ev.RelatedID)
		}
		seen[ev.Event] = true
	}

	send(ws.Frame{Type: ws.FrameTypeRequest, ID: "3", Method: "bogus"})
	if f := next("3"); f.OK == nil || *f.OK || !strings.Contains(f.Error, "unknown method") {
		t.Errorf("bogus method: %+v", f)
	}

	send(ws.Frame{Type: ws.FrameTypeRequest, ID: "4", Method: ws.MethodGetTask, Params: json.RawMessage(`{"id":"` + accepted.TaskID + `"}`)})
	f = next("4")
	var task tasks.Task
	if err := json.Unmarshal(f.Payload, &task); err != nil || task.Status != tasks.TaskCompleted {
		t.Errorf("get_task: %s", f.Payload)
	}
}

func TestLocalPrefix(t *testing.T) {
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{"/assets", "/assets", true},
		{"/media/", "/media", true},
		{"https://cdn.example.com/studio", "", false},
		{"/", "", false},
	}
	for _, tt := range tests {
		got, ok := localPrefix(tt.in)
		if got != tt.want || ok != tt.ok {
			t.Errorf("localPrefix(%q): got %q %v, want %q %v", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}
