package extractor

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/iconidentify/vidgrab/internal/domain"
)

// igFixture builds a test server standing in for both instagram.com and
// the media CDN, plus an extractor pointed at it.
func igFixture(t *testing.T, handler http.HandlerFunc) (*httptest.Server, *Instagram) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	client := &http.Client{Timeout: 5 * time.Second}
	return srv, NewInstagram(client, srv.URL, "test-agent")
}

func TestInstagram_Resolve_Video(t *testing.T) {
	var srv *httptest.Server
	srv, ig := igFixture(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/p/ABC123/":
			fmt.Fprintf(w, `{"items":[{"media_type":2,"video_versions":[{"url":"%s/media/hq.mp4","width":1080},{"url":"%s/media/lq.mp4","width":480}]}]}`, srv.URL, srv.URL)
		case "/media/hq.mp4":
			w.Header().Set("Content-Type", "video/mp4")
			w.Header().Set("Content-Length", "2048")
		default:
			http.NotFound(w, r)
		}
	})

	desc, err := ig.Resolve(context.Background(), "https://www.instagram.com/reel/ABC123/")
	if err != nil {
		t.Fatalf("Resolve error: %v", err)
	}

	if desc.Platform != domain.PlatformInstagram {
		t.Errorf("Platform = %s", desc.Platform)
	}
	if desc.MediaID != "ABC123" {
		t.Errorf("MediaID = %q, want ABC123", desc.MediaID)
	}
	if desc.SourceURL != srv.URL+"/media/hq.mp4" {
		t.Errorf("SourceURL = %q", desc.SourceURL)
	}
	if desc.ContentType != "video/mp4" {
		t.Errorf("ContentType = %q", desc.ContentType)
	}
	if desc.DeclaredSize != 2048 {
		t.Errorf("DeclaredSize = %d, want 2048", desc.DeclaredSize)
	}
	if desc.ResolvedAt.IsZero() {
		t.Error("ResolvedAt not set")
	}
}

func TestInstagram_Resolve_CarouselFirstVideoWins(t *testing.T) {
	var srv *httptest.Server
	srv, ig := igFixture(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/p/CAR123/" {
			fmt.Fprintf(w, `{"items":[{"media_type":8,"carousel_media":[
				{"media_type":1},
				{"media_type":2,"video_versions":[{"url":"%s/media/first.mp4"}]},
				{"media_type":2,"video_versions":[{"url":"%s/media/second.mp4"}]}
			]}]}`, srv.URL, srv.URL)
			return
		}
		// CDN probe; contents irrelevant here
		w.Header().Set("Content-Type", "video/mp4")
	})

	desc, err := ig.Resolve(context.Background(), "https://www.instagram.com/p/CAR123/")
	if err != nil {
		t.Fatalf("Resolve error: %v", err)
	}
	if desc.SourceURL != srv.URL+"/media/first.mp4" {
		t.Errorf("SourceURL = %q, want first carousel video", desc.SourceURL)
	}
}

func TestInstagram_Resolve_CarouselWithoutVideo(t *testing.T) {
	_, ig := igFixture(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"items":[{"media_type":8,"carousel_media":[{"media_type":1},{"media_type":1}]}]}`)
	})

	_, err := ig.Resolve(context.Background(), "https://www.instagram.com/p/IMG123/")
	if !errors.Is(err, domain.ErrContentNotFound) {
		t.Errorf("err = %v, want ErrContentNotFound", err)
	}
}

func TestInstagram_Resolve_NotFound(t *testing.T) {
	_, ig := igFixture(t, func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})

	_, err := ig.Resolve(context.Background(), "https://www.instagram.com/p/GONE/")
	if !errors.Is(err, domain.ErrContentNotFound) {
		t.Errorf("err = %v, want ErrContentNotFound", err)
	}
}

func TestInstagram_Resolve_LoginWall(t *testing.T) {
	_, ig := igFixture(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/accounts/login/" {
			fmt.Fprint(w, "login please")
			return
		}
		http.Redirect(w, r, "/accounts/login/", http.StatusFound)
	})

	_, err := ig.Resolve(context.Background(), "https://www.instagram.com/p/PRIV/")
	if !errors.Is(err, domain.ErrContentRestricted) {
		t.Errorf("err = %v, want ErrContentRestricted", err)
	}
}

func TestInstagram_Resolve_EmbedFallback(t *testing.T) {
	var srv *httptest.Server
	srv, ig := igFixture(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/p/EMB123/":
			// Primary endpoint hands back HTML instead of JSON.
			fmt.Fprint(w, "<html>nope</html>")
		case "/p/EMB123/embed/":
			fmt.Fprintf(w, `<script>{"video_url":"%s&v=1"}</script>`,
				srv.URL+`\/media\/emb.mp4?a=b`)
		case "/media/emb.mp4":
			w.Header().Set("Content-Type", "video/mp4")
		default:
			http.NotFound(w, r)
		}
	})

	desc, err := ig.Resolve(context.Background(), "https://www.instagram.com/reel/EMB123/")
	if err != nil {
		t.Fatalf("Resolve error: %v", err)
	}
	want := srv.URL + "/media/emb.mp4?a=b&v=1"
	if desc.SourceURL != want {
		t.Errorf("SourceURL = %q, want %q", desc.SourceURL, want)
	}
}

func TestInstagram_Resolve_ShapeChanged(t *testing.T) {
	_, ig := igFixture(t, func(w http.ResponseWriter, r *http.Request) {
		// Neither the metadata endpoint nor the embed page carries
		// anything recognizable.
		fmt.Fprint(w, "<html>redesigned</html>")
	})

	_, err := ig.Resolve(context.Background(), "https://www.instagram.com/p/NEW123/")
	if !errors.Is(err, domain.ErrUpstreamShapeChanged) {
		t.Errorf("err = %v, want ErrUpstreamShapeChanged", err)
	}
	if errors.Is(err, domain.ErrContentNotFound) {
		t.Error("shape drift must stay distinct from not-found")
	}
}

func TestInstagram_Resolve_Throttled(t *testing.T) {
	_, ig := igFixture(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	})

	_, err := ig.Resolve(context.Background(), "https://www.instagram.com/p/BUSY/")
	if !errors.Is(err, domain.ErrUpstreamTransient) {
		t.Errorf("err = %v, want ErrUpstreamTransient", err)
	}
}

func TestInstagram_Resolve_Timeout(t *testing.T) {
	_, ig := igFixture(t, func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := ig.Resolve(ctx, "https://www.instagram.com/p/SLOW/")
	if !errors.Is(err, domain.ErrTimeout) {
		t.Errorf("err = %v, want ErrTimeout", err)
	}
}

func TestInstagram_Resolve_ProbeFailureKeepsDescriptor(t *testing.T) {
	var srv *httptest.Server
	srv, ig := igFixture(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/p/NOHEAD/":
			fmt.Fprintf(w, `{"items":[{"media_type":2,"video_versions":[{"url":"%s/media/x.mp4"}]}]}`, srv.URL)
		case r.Method == http.MethodHead:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	})

	desc, err := ig.Resolve(context.Background(), "https://www.instagram.com/p/NOHEAD/")
	if err != nil {
		t.Fatalf("Resolve error: %v", err)
	}
	if desc.DeclaredSize != -1 {
		t.Errorf("DeclaredSize = %d, want -1 when probe fails", desc.DeclaredSize)
	}
	if desc.ContentType != "video/mp4" {
		t.Errorf("ContentType = %q, want default video/mp4", desc.ContentType)
	}
}
