// Package main hosts the carcrawler entrypoint.
//
// Architecture overview:
//   - Discovery: crawler.Discoverer finds the last index page that still lists cars, by binary search over
//     [1, discovery.max_pages] or by a linear scan that stops after discovery.empty_streak empty pages.
//   - Collection: crawler.Collector fetches index pages 1..N with collector.parallelism goroutines, resolves
//     listing anchors against the page URL and returns the deduplicated union of detail URLs.
//   - Detail fetch: dispatcher.Dispatcher preloads every URL into a bounded queue and drains it with
//     fetcher.workers workers; the run waits on the queue join before committing or reporting.
//   - Extraction & persistence: extract.Extractor applies the declarative rule table to each detail page and
//     the listing is upserted by URL, per record or in one transaction per run (store.commit_mode).
//   - Service mode: `serve` runs the pipeline on a cron schedule and exposes /healthz, /readyz, /metrics and
//     the /v1 listing and run endpoints; run summaries are optionally published to Pub/Sub.
//
// Operational notes:
//   - Fetch and parse failures are logged and counted; they never abort a run. Persistence failures fail it.
//   - The browser phone strategy drives headless Chrome and processes detail pages one at a time.
//   - Configure with a YAML file (--config), CARCRAWLER_* env vars, a .env file, or the legacy BASE_URL and
//     DB_* variables.
package main
