// cfcheck is a quick Codeforces API connectivity probe: fetches the problem
// catalog and, when CF_HANDLE is set, that handle's rating and recent
// submissions.
package main

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/park285/cf-duels/internal/cfapi"
)

func main() {
	_ = godotenv.Load()

	baseURL := os.Getenv("CF_API_BASE_URL")
	handle := os.Getenv("CF_HANDLE")

	client := cfapi.NewClient(baseURL,
		cfapi.WithTimeout(8*time.Second),
		cfapi.WithRetry(1),
	)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	problems, err := client.Problems(ctx)
	if err != nil {
		log.Fatalf("problemset.problems error: %v", err)
	}
	rated := 0
	for _, p := range problems {
		if p.Rating > 0 {
			rated++
		}
	}
	log.Printf("problemset.problems ok: total=%d rated=%d", len(problems), rated)

	if handle == "" {
		log.Println("CF_HANDLE not set; skipping user checks")
		return
	}

	rating, err := client.UserRating(ctx, handle)
	if err != nil {
		log.Printf("user.info error: %v", err)
	} else if rating == nil {
		log.Printf("user.info ok: handle=%s unrated", handle)
	} else {
		log.Printf("user.info ok: handle=%s rating=%d", handle, *rating)
	}

	subs, err := client.RecentSubmissions(ctx, handle, 5)
	if err != nil {
		log.Printf("user.status error: %v", err)
		return
	}
	for _, s := range subs {
		log.Printf("submission id=%d problem=%d%s verdict=%s", s.ID, s.Problem.ContestID, s.Problem.Index, s.Verdict)
	}
}
