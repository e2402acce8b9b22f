package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/papercomputeco/mnemo/pkg/consolidate"
	"github.com/papercomputeco/mnemo/pkg/eventstream/nop"
	"github.com/papercomputeco/mnemo/pkg/extract"
	"github.com/papercomputeco/mnemo/pkg/hierarchy"
	"github.com/papercomputeco/mnemo/pkg/search"
	"github.com/papercomputeco/mnemo/pkg/storage/inmemory"
)

func newTestServer() *Server {
	driver := inmemory.NewDriver()
	tree := hierarchy.NewStore(hierarchy.DefaultConfig())

	logger, err := zap.NewDevelopment()
	Expect(err).ToNot(HaveOccurred())

	extractor := extract.NewExtractor(extract.DefaultConfig(), extract.DefaultRules(), tree, logger)
	searcher := search.NewOrchestrator(driver, logger, search.WithHierarchy(tree))
	consolidator := consolidate.NewService(driver, searcher, nop.NewPublisher(), logger, consolidate.DefaultConfig())

	return NewServer(Config{ListenAddr: ":0"}, Deps{
		Storer:       driver,
		Searcher:     searcher,
		Consolidator: consolidator,
		Tree:         tree,
		Extractor:    extractor,
	}, logger)
}

func postJSON(s *Server, path, body string) *http.Response {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.app.Test(req)
	Expect(err).ToNot(HaveOccurred())
	return resp
}

var _ = Describe("POST /v1/categories/extract", func() {
	var server *Server

	BeforeEach(func() {
		server = newTestServer()
	})

	It("classifies submitted content without storing a record", func() {
		resp := postJSON(server, "/v1/categories/extract",
			`{"content":"debugging a python stack trace in the compiler"}`)
		Expect(resp.StatusCode).To(Equal(http.StatusOK))

		var result extract.Result
		Expect(json.NewDecoder(resp.Body).Decode(&result)).To(Succeed())
		Expect(result.PrimaryCategory).ToNot(BeEmpty())
		Expect(result.Categories).ToNot(BeEmpty())
		Expect(result.Confidence).To(BeNumerically(">", 0))
	})

	It("merges submitted existing categories into the result", func() {
		resp := postJSON(server, "/v1/categories/extract",
			`{"content":"notes on the postgres planner","existing":["Databases"]}`)
		Expect(resp.StatusCode).To(Equal(http.StatusOK))

		var result extract.Result
		Expect(json.NewDecoder(resp.Body).Decode(&result)).To(Succeed())

		names := make([]string, 0, len(result.Categories))
		for _, c := range result.Categories {
			names = append(names, c.Name)
		}
		Expect(names).To(ContainElement("Databases"))
	})

	It("rejects requests without content", func() {
		resp := postJSON(server, "/v1/categories/extract", `{}`)
		Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
	})

	It("reports extraction unavailable when no extractor is wired", func() {
		logger, err := zap.NewDevelopment()
		Expect(err).ToNot(HaveOccurred())

		bare := NewServer(Config{ListenAddr: ":0"}, Deps{
			Storer: inmemory.NewDriver(),
			Tree:   hierarchy.NewStore(hierarchy.DefaultConfig()),
		}, logger)

		resp := postJSON(bare, "/v1/categories/extract", `{"content":"anything"}`)
		Expect(resp.StatusCode).To(Equal(http.StatusServiceUnavailable))
	})
})
