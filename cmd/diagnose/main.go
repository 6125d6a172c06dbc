// Command diagnose compares portal responses with and without a browser
// session's cookies.
//
//	diagnose [-site site.yaml] [-url https://...]... ['laravel_session=...; XSRF-TOKEN=...']
//	diagnose [-site site.yaml] -write-site out.yaml
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"orderbridge/internal/config"
	"orderbridge/internal/core/diagnose"
	"orderbridge/internal/logger"
	"orderbridge/internal/telemetry"
)

type urlList []string

func (u *urlList) String() string     { return strings.Join(*u, ",") }
func (u *urlList) Set(v string) error { *u = append(*u, v); return nil }

func main() {
	var urls urlList
	siteFile := flag.String("site", os.Getenv("SITE_FILE"), "site profile YAML")
	timeout := flag.Duration("timeout", 30*time.Second, "timeout per request")
	asJSON := flag.Bool("json", false, "print the report as JSON")
	dumpLogs := flag.Bool("logs", false, "dump the telemetry log to stderr when done")
	writeSite := flag.String("write-site", "", "write the effective site profile to this file and exit")
	flag.Var(&urls, "url", "URL to probe (repeatable); defaults to the login, order and completion pages")
	flag.Parse()

	sink := telemetry.New(telemetry.DefaultCapacity)
	// Log lines go to stderr so stdout carries only the report.
	log := logger.NewWithConfig("Diagnostic", logger.Config{
		IsProduction: os.Getenv("APP_ENV") == "production",
		AppEnv:       os.Getenv("APP_ENV"),
		Out:          os.Stderr,
		Sink:         sink,
	})

	site, err := config.LoadSite(*siteFile)
	if err != nil {
		log.LogFatal("load site profile", err)
	}
	if *writeSite != "" {
		if err := site.Save(*writeSite); err != nil {
			log.LogFatal("write site profile", err)
		}
		log.LogInfof("site profile written to %s", *writeSite)
		return
	}
	if len(urls) == 0 {
		urls = urlList{site.URL(site.Paths.Login), site.URL(site.Paths.Order), site.URL(site.Paths.Completed)}
	}

	cookies, err := diagnose.ParseCookies(flag.Args())
	if err != nil {
		log.LogFatal("read cookies", err)
	}
	if len(cookies) == 0 {
		log.LogWarn("no cookies given, both probes of each URL run unauthenticated")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(len(urls)*2+1)*(*timeout))
	defer cancel()

	rep := diagnose.New(diagnose.CollyProber{Timeout: *timeout}, log).Run(ctx, urls, cookies)
	log.Info().Str("conclusion", rep.Conclusion).Msg("report\n" + rep.String())
	if *asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(rep)
	} else {
		fmt.Print(rep.String())
	}

	if *dumpLogs {
		enc := json.NewEncoder(os.Stderr)
		for _, e := range sink.Recent(0) {
			_ = enc.Encode(e)
		}
	}

	// A probe that never got an answer makes the comparison meaningless.
	for _, c := range rep.Comparisons {
		if c.Without.Status == 0 || c.With.Status == 0 {
			os.Exit(1)
		}
	}
}
