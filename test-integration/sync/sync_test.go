package integration

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/stacklok/depsync/internal/app"
	"github.com/stacklok/depsync/internal/api/v0"
	"github.com/stacklok/depsync/internal/config"
	"github.com/stacklok/depsync/internal/store"
	pkgsync "github.com/stacklok/depsync/internal/sync"
	"github.com/stacklok/depsync/internal/sync/coordinator"
	"github.com/stacklok/depsync/test-integration/sync/helpers"
)

var contractFiles = map[string]string{
	"foundry.toml": "[profile.default]\nsrc = \"src\"\n",
	"src/Lib.sol":  "// SPDX-License-Identifier: MIT\npragma solidity ^0.8.0;\n",
}

func reportFor(summary *coordinator.RunSummary, id string) coordinator.RepositoryReport {
	for _, report := range summary.Reports {
		if report.Repository == id {
			return report
		}
	}
	Fail(fmt.Sprintf("no report for %s", id))
	return coordinator.RepositoryReport{}
}

func publishedFor(publisher *helpers.RecordingPublisher, prefix string) []string {
	var out []string
	for _, dep := range publisher.Dependencies() {
		if len(dep) > len(prefix) && dep[:len(prefix)] == prefix {
			out = append(out, dep)
		}
	}
	return out
}

var _ = Describe("One-shot sync", Label("sync"), func() {
	var (
		tempDir   string
		github    *helpers.FakeGitHub
		registry  string
		publisher *helpers.RecordingPublisher
		installer helpers.FakeInstaller
		repos     []config.Repository
	)

	BeforeEach(func() {
		tempDir = createTempDir("depsync-sync-")
		github = helpers.NewFakeGitHub()
		server := helpers.NewPackumentServer(map[string][]string{
			"left-pad": {"1.0.0", "1.1.0", "1.2.0"},
		})
		registry = server.URL
		DeferCleanup(server.Close)

		publisher = helpers.NewRecordingPublisher()
		installer = helpers.FakeInstaller{Invalid: map[string]bool{"1.1.0": true}}
		repos = []config.Repository{
			{ID: "acme/lib", Kind: config.KindSourceControl},
			{ID: "left-pad", Kind: config.KindRegistry},
		}

		github.AddRelease("acme/lib", helpers.FakeRelease{Name: "v1.0.0", TagName: "v1.0.0"}, contractFiles)
		github.AddRelease("acme/lib", helpers.FakeRelease{Name: "Release 1.1.0", TagName: "v1.1.0"}, contractFiles)
	})

	AfterEach(func() {
		github.Close()
		cleanupTempDir(tempDir)
	})

	buildApp := func(opts ...app.Option) *app.App {
		configPath := helpers.WriteConfigYAML(helpers.PipelineConfig{
			Dir:              tempDir,
			SourceControlURL: github.URL(),
			RegistryURL:      registry,
			Repositories:     repos,
		})
		pipeline := helpers.BuildApp(ctx, configPath,
			append([]app.Option{app.WithPublisher(publisher), app.WithInstaller(installer)}, opts...)...)
		DeferCleanup(func() { _ = pipeline.Close(context.Background()) })
		return pipeline
	}

	It("publishes new versions oldest first and records rejections", func() {
		pipeline := buildApp()

		summary, err := pipeline.RunOnce(ctx, false)
		Expect(err).NotTo(HaveOccurred())

		Expect(publishedFor(publisher, "acme-lib~")).To(Equal([]string{"acme-lib~1.0.0", "acme-lib~1.1.0"}))
		Expect(publishedFor(publisher, "left-pad~")).To(Equal([]string{"left-pad~1.0.0", "left-pad~1.2.0"}))

		By("stripping the zipball top-level directory")
		first := publisher.Published()
		for _, pkg := range first {
			if pkg.Dependency == "acme-lib~1.0.0" {
				Expect(pkg.Files).To(Equal([]string{"foundry.toml", "src/Lib.sol"}))
			}
		}

		lib := reportFor(summary, "acme/lib")
		Expect(lib.Reason).To(Equal(pkgsync.ReasonNeverSynced))
		Expect(lib.Result.Count(pkgsync.StatePublished)).To(Equal(2))

		leftPad := reportFor(summary, "left-pad")
		Expect(leftPad.Result.Count(pkgsync.StateRejected)).To(Equal(1))

		versionStore := pipeline.GetComponents().Store
		rejected, err := versionStore.GetRejected(ctx, "left-pad")
		Expect(err).NotTo(HaveOccurred())
		Expect(rejected).To(Equal(store.VersionSet{"1.1.0": {}}))
	})

	It("skips repositories inside the freshness window and only publishes new versions when forced", func() {
		pipeline := buildApp()

		_, err := pipeline.RunOnce(ctx, false)
		Expect(err).NotTo(HaveOccurred())
		Expect(publisher.Published()).To(HaveLen(4))

		summary, err := pipeline.RunOnce(ctx, false)
		Expect(err).NotTo(HaveOccurred())
		Expect(reportFor(summary, "acme/lib").Reason).To(Equal(pkgsync.ReasonRecentlySynced))
		Expect(publisher.Published()).To(HaveLen(4))

		github.AddRelease("acme/lib", helpers.FakeRelease{Name: "v1.2.0", TagName: "v1.2.0"}, contractFiles)

		summary, err = pipeline.RunOnce(ctx, true)
		Expect(err).NotTo(HaveOccurred())
		lib := reportFor(summary, "acme/lib")
		Expect(lib.Reason).To(Equal(pkgsync.ReasonForced))
		Expect(lib.Result.Count(pkgsync.StateFiltered)).To(Equal(2))
		Expect(publishedFor(publisher, "acme-lib~")).To(HaveLen(3))
		Expect(publishedFor(publisher, "acme-lib~")[2]).To(Equal("acme-lib~1.2.0"))

		By("never downloading an already published archive again")
		Expect(github.Downloads("acme/lib", "v1.0.0")).To(Equal(1))
	})

	It("retries a deferred publish on the next pass", func() {
		repos = repos[:1]
		publisher.FailOnce("acme-lib~1.1.0")
		pipeline := buildApp()

		summary, err := pipeline.RunOnce(ctx, false)
		Expect(err).NotTo(HaveOccurred())
		Expect(reportFor(summary, "acme/lib").Result.Count(pkgsync.StatePublishDeferred)).To(Equal(1))
		Expect(publisher.Dependencies()).To(Equal([]string{"acme-lib~1.0.0"}))

		_, err = pipeline.RunOnce(ctx, true)
		Expect(err).NotTo(HaveOccurred())
		Expect(publisher.Dependencies()).To(Equal([]string{"acme-lib~1.0.0", "acme-lib~1.1.0"}))
	})

	It("falls back to tags, tracks branches and retries error documents", func() {
		repos = []config.Repository{
			{ID: "acme/tags-only", Kind: config.KindSourceControl},
			{ID: "acme/tools", Kind: config.KindSourceControl, TrackBranch: true},
			{ID: "acme/lib", Kind: config.KindSourceControl},
		}
		github.AddTag("acme/tags-only", "v0.1.0", contractFiles)
		github.SetBranchHead("acme/tools", "master", "0a1b2c3d", contractFiles)
		github.SetBranchHead("acme/tools", "main", "9f8e7d6c", contractFiles)
		github.ServeErrorDocument("acme/lib", "v1.0.0")
		pipeline := buildApp()

		_, err := pipeline.RunOnce(ctx, false)
		Expect(err).NotTo(HaveOccurred())

		Expect(publishedFor(publisher, "acme-tags-only~")).To(Equal([]string{"acme-tags-only~0.1.0"}))
		Expect(publishedFor(publisher, "acme-tools~")).To(Equal([]string{"acme-tools~9f8e7d6c"}))
		Expect(publishedFor(publisher, "acme-lib~")).To(Equal([]string{"acme-lib~1.0.0", "acme-lib~1.1.0"}))
		Expect(github.Downloads("acme/lib", "v1.0.0")).To(Equal(1))
	})

	It("leaves versions with unreadable archives unrecorded", func() {
		repos = repos[:1]
		github.SetArchive("acme/lib", "v1.0.0", []byte("not a zip archive"))
		pipeline := buildApp()

		summary, err := pipeline.RunOnce(ctx, false)
		Expect(err).NotTo(HaveOccurred())
		lib := reportFor(summary, "acme/lib")
		Expect(lib.Result.Count(pkgsync.StateSkipped)).To(Equal(1))
		Expect(publisher.Dependencies()).To(Equal([]string{"acme-lib~1.1.0"}))

		github.SetArchive("acme/lib", "v1.0.0", helpers.BuildZipball("acme/lib", "v1.0.0", contractFiles))

		_, err = pipeline.RunOnce(ctx, true)
		Expect(err).NotTo(HaveOccurred())
		Expect(publisher.Dependencies()).To(Equal([]string{"acme-lib~1.1.0", "acme-lib~1.0.0"}))
	})

	It("reports pending versions without side effects in dry-run mode", func() {
		pipeline := buildApp(app.WithDryRun(true))

		summary, err := pipeline.RunOnce(ctx, false)
		Expect(err).NotTo(HaveOccurred())
		Expect(summary.Totals()[pkgsync.StatePending]).To(Equal(5))
		Expect(publisher.Published()).To(BeEmpty())
		Expect(github.Downloads("acme/lib", "v1.0.0")).To(BeZero())

		summaries, err := pipeline.GetComponents().Store.ListRepositories(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(summaries).To(BeEmpty())
	})

	It("keeps records across processes", func() {
		first := buildApp()
		_, err := first.RunOnce(ctx, false)
		Expect(err).NotTo(HaveOccurred())
		Expect(first.Close(context.Background())).To(Succeed())

		second := buildApp()
		summary, err := second.RunOnce(ctx, true)
		Expect(err).NotTo(HaveOccurred())
		Expect(summary.Totals()[pkgsync.StateFiltered]).To(Equal(5))
		Expect(publisher.Published()).To(HaveLen(4))
	})
})

var _ = Describe("Watch mode", Label("watch"), func() {
	var (
		tempDir    string
		github     *helpers.FakeGitHub
		publisher  *helpers.RecordingPublisher
		configPath string
	)

	BeforeEach(func() {
		tempDir = createTempDir("depsync-watch-")
		github = helpers.NewFakeGitHub()
		github.AddRelease("acme/lib", helpers.FakeRelease{Name: "v1.0.0", TagName: "v1.0.0"}, contractFiles)
		github.AddRelease("acme/lib", helpers.FakeRelease{Name: "v1.9.0", TagName: "v1.9.0"}, contractFiles)
		github.AddRelease("acme/lib", helpers.FakeRelease{Name: "v1.10.0", TagName: "v1.10.0"}, contractFiles)
		publisher = helpers.NewRecordingPublisher()
	})

	AfterEach(func() {
		github.Close()
		cleanupTempDir(tempDir)
	})

	writeConfig := func(abort bool) string {
		return helpers.WriteConfigYAML(helpers.PipelineConfig{
			Dir:                    tempDir,
			SourceControlURL:       github.URL(),
			RegistryURL:            "http://127.0.0.1:1",
			Repositories:           []config.Repository{{ID: "acme/lib", Kind: config.KindSourceControl}},
			AbortOnExtractionError: abort,
		})
	}

	It("serves sync state after the first run", func() {
		configPath = writeConfig(false)
		server := helpers.StartServer(ctx, configPath, helpers.FreePort(), app.WithPublisher(publisher))
		DeferCleanup(server.Stop)

		server.WaitForReady(10 * time.Second)

		status, body := server.Get("/health")
		Expect(status).To(Equal(http.StatusOK))
		Expect(string(body)).To(ContainSubstring("healthy"))

		status, body = server.Get("/v0/repositories")
		Expect(status).To(Equal(http.StatusOK))
		var repositories []v0.RepositoryResponse
		Expect(json.Unmarshal(body, &repositories)).To(Succeed())
		Expect(repositories).To(HaveLen(1))
		Expect(repositories[0].Repository).To(Equal("acme/lib"))
		Expect(repositories[0].Published).To(Equal(3))
		Expect(repositories[0].LatestVersion).To(Equal("1.10.0"))

		status, body = server.Get("/v0/versions?repository=acme/lib")
		Expect(status).To(Equal(http.StatusOK))
		var versions v0.VersionsResponse
		Expect(json.Unmarshal(body, &versions)).To(Succeed())
		Expect(versions.Published).To(Equal([]string{"1.0.0", "1.9.0", "1.10.0"}))

		status, body = server.Get("/v0/runs/latest")
		Expect(status).To(Equal(http.StatusOK))
		var run v0.RunResponse
		Expect(json.Unmarshal(body, &run)).To(Succeed())
		Expect(run.Aborted).To(BeFalse())
		Expect(run.Totals).To(HaveKeyWithValue(string(pkgsync.StatePublished), 3))
	})

	It("ends watch mode when a run aborts on an extraction failure", func() {
		github.SetArchive("acme/lib", "v1.9.0", []byte("not a zip archive"))
		configPath = writeConfig(true)
		server := helpers.StartServer(ctx, configPath, helpers.FreePort(), app.WithPublisher(publisher))
		DeferCleanup(server.Close)

		var err error
		Eventually(server.Done(), 10*time.Second).Should(Receive(&err))
		Expect(err).To(MatchError(coordinator.ErrRunAborted))

		By("publishing nothing after the failed version")
		Expect(publisher.Dependencies()).To(Equal([]string{"acme-lib~1.0.0"}))
	})
})
