package web_test

import (
	"encoding/json"
	"image/png"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/makiuchi-d/gozxing"
	"github.com/makiuchi-d/gozxing/qrcode"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/onsi/gomega/ghttp"

	"github.com/zombor/photodesk/internal/auth"
	"github.com/zombor/photodesk/internal/camera"
	"github.com/zombor/photodesk/internal/decoder"
	"github.com/zombor/photodesk/internal/frame"
	"github.com/zombor/photodesk/internal/notify"
	"github.com/zombor/photodesk/internal/preview"
	"github.com/zombor/photodesk/internal/session"
	"github.com/zombor/photodesk/internal/upload"
	"github.com/zombor/photodesk/internal/web"
)

type receivedUpload struct {
	clientID   string
	isPassport string
	size       int
}

var _ = Describe("Integration", func() {
	var (
		tempDir  string
		backend  *ghttp.Server
		local    *ghttp.Server
		store    *auth.BoltStore
		sess     *session.Session
		previews *preview.Registry

		mu      sync.Mutex
		uploads []receivedUpload
		logouts int
	)

	writeQRFrame := func(text string) {
		matrix, err := qrcode.NewQRCodeWriter().Encode(text, gozxing.BarcodeFormat_QR_CODE, 300, 300, nil)
		Expect(err).NotTo(HaveOccurred())
		f, err := os.Create(filepath.Join(tempDir, "frames", "frame.png"))
		Expect(err).NotTo(HaveOccurred())
		defer f.Close()
		Expect(png.Encode(f, matrix)).To(Succeed())
	}

	BeforeEach(func() {
		tempDir = GinkgoT().TempDir()
		Expect(os.MkdirAll(filepath.Join(tempDir, "frames"), 0755)).To(Succeed())
		uploads = nil
		logouts = 0

		backend = ghttp.NewServer()
		backend.RouteToHandler("POST", "/api/auth/login", ghttp.CombineHandlers(
			ghttp.VerifyJSON(`{"email":"dana@example.com","password":"hunter2"}`),
			ghttp.RespondWith(http.StatusOK, `{"token":"tok-abc","user":{"name":"Dana"}}`),
		))
		backend.RouteToHandler("POST", "/api/auth/logout", func(w http.ResponseWriter, r *http.Request) {
			mu.Lock()
			defer mu.Unlock()
			logouts++
		})
		backend.RouteToHandler("POST", "/api/upload-image", func(w http.ResponseWriter, r *http.Request) {
			defer GinkgoRecover()
			Expect(r.Header.Get("Authorization")).To(Equal("Bearer tok-abc"))
			Expect(r.ParseMultipartForm(upload.MaxFileSize)).To(Succeed())
			f, _, err := r.FormFile("image")
			Expect(err).NotTo(HaveOccurred())
			data, _ := io.ReadAll(f)
			f.Close()

			mu.Lock()
			defer mu.Unlock()
			uploads = append(uploads, receivedUpload{
				clientID:   r.FormValue("client_id"),
				isPassport: r.FormValue("is_passport"),
				size:       len(data),
			})
			w.WriteHeader(http.StatusCreated)
		})

		var err error
		store, err = auth.NewBoltStore(filepath.Join(tempDir, "photodesk.db"))
		Expect(err).NotTo(HaveOccurred())
		authClient := auth.NewClient(backend.URL(), store, nil)

		previews = preview.NewRegistry(preview.NewMemoryStorage())
		feed := notify.NewFeed(time.Minute)

		sess = session.New(session.Deps{
			Camera:   camera.NewDirectory(filepath.Join(tempDir, "frames")),
			Decoder:  decoder.NewQR(10*time.Millisecond, 5*time.Second),
			Encoder:  frame.NewEncoder(0, 0),
			Previews: previews,
			Uploader: upload.NewCoordinator(upload.NewClient(backend.URL(), nil), 0),
			Auth:     authClient,
			Notifier: feed,
		})

		server := web.NewServer(sess, authClient, previews, feed, web.BasicAuth{})
		local = ghttp.NewServer()
		for _, method := range []string{"GET", "POST", "DELETE"} {
			local.RouteToHandler(method, regexp.MustCompile(`.*`), server.ServeHTTP)
		}
	})

	AfterEach(func() {
		sess.Close()
		local.Close()
		backend.Close()
		store.Close()
	})

	call := func(method, path, body string) *http.Response {
		var reader io.Reader
		if body != "" {
			reader = strings.NewReader(body)
		}
		req, err := http.NewRequest(method, local.URL()+path, reader)
		Expect(err).NotTo(HaveOccurred())
		resp, err := http.DefaultClient.Do(req)
		Expect(err).NotTo(HaveOccurred())
		return resp
	}

	status := func(method, path, body string) int {
		resp := call(method, path, body)
		defer resp.Body.Close()
		io.Copy(io.Discard, resp.Body)
		return resp.StatusCode
	}

	snapshot := func() session.View {
		resp := call("GET", "/api/session", "")
		defer resp.Body.Close()
		var view session.View
		Expect(json.NewDecoder(resp.Body).Decode(&view)).To(Succeed())
		return view
	}

	It("runs the full login, scan, capture, upload, logout workflow", func() {
		By("rejecting session routes before login")
		Expect(status("GET", "/api/session", "")).To(Equal(http.StatusUnauthorized))

		By("logging in and persisting the credential")
		Expect(status("POST", "/api/auth/login", `{"email":"dana@example.com","password":"hunter2"}`)).To(Equal(http.StatusOK))
		token, err := store.Get(auth.KeyToken)
		Expect(err).NotTo(HaveOccurred())
		Expect(token).To(Equal("tok-abc"))

		By("scanning the subject QR code")
		writeQRFrame("CUST-42")
		Expect(status("POST", "/api/session/start", "")).To(Equal(http.StatusAccepted))
		Eventually(func() session.State { return snapshot().State }, 5*time.Second).Should(Equal(session.Identified))
		Expect(snapshot().SubjectID).To(Equal("CUST-42"))

		By("capturing two photos and flagging the first as a document")
		Expect(status("POST", "/api/session/captures", "")).To(Equal(http.StatusCreated))
		Expect(status("POST", "/api/session/captures", "")).To(Equal(http.StatusCreated))
		Expect(status("POST", "/api/session/captures/0/toggle", "")).To(Equal(http.StatusOK))

		view := snapshot()
		Expect(view.Captures).To(HaveLen(2))
		Expect(view.Captures[0].IsDocument).To(BeTrue())
		Expect(view.Captures[1].IsDocument).To(BeFalse())
		firstPreview := view.Captures[0].Preview

		resp := call("GET", "/previews/"+firstPreview, "")
		Expect(resp.StatusCode).To(Equal(http.StatusOK))
		Expect(resp.Header.Get("Content-Type")).To(Equal("image/jpeg"))
		resp.Body.Close()

		By("uploading the batch")
		resp = call("POST", "/api/session/upload", "")
		Expect(resp.StatusCode).To(Equal(http.StatusOK))
		var result struct {
			Total     int    `json:"total"`
			Succeeded int    `json:"succeeded"`
			Failed    []int  `json:"failed"`
			Error     string `json:"error"`
		}
		Expect(json.NewDecoder(resp.Body).Decode(&result)).To(Succeed())
		resp.Body.Close()
		Expect(result.Total).To(Equal(2))
		Expect(result.Succeeded).To(Equal(2))
		Expect(result.Failed).To(BeEmpty())
		Expect(result.Error).To(BeEmpty())

		mu.Lock()
		Expect(uploads).To(HaveLen(2))
		flags := []string{uploads[0].isPassport, uploads[1].isPassport}
		for _, u := range uploads {
			Expect(u.clientID).To(Equal("CUST-42"))
			Expect(u.size).To(BeNumerically(">", 0))
		}
		mu.Unlock()
		Expect(flags).To(ConsistOf("1", "0"))

		view = snapshot()
		Expect(view.State).To(Equal(session.Completed))
		Expect(view.SubjectID).To(Equal("CUST-42"))
		Expect(view.Captures).To(BeEmpty())
		Expect(previews.Outstanding()).To(BeZero())
		Expect(status("GET", "/previews/"+firstPreview, "")).To(Equal(http.StatusNotFound))

		By("logging out")
		Expect(status("POST", "/api/auth/logout", "")).To(Equal(http.StatusNoContent))
		Expect(status("GET", "/api/session", "")).To(Equal(http.StatusUnauthorized))
		token, err = store.Get(auth.KeyToken)
		Expect(err).NotTo(HaveOccurred())
		Expect(token).To(BeEmpty())
		mu.Lock()
		Expect(logouts).To(Equal(1))
		mu.Unlock()
		Expect(sess.State()).To(Equal(session.Idle))
	})
})
