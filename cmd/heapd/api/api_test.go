package api

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/fulldump/apitest"
	"github.com/fulldump/biff"

	"github.com/joshuapare/heapkit/cmd/heapd/service"
	"github.com/joshuapare/heapkit/internal/vmem"
)

type JSON = map[string]any

func TestAPI(t *testing.T) {

	biff.Alternative("Setup", func(a *biff.A) {

		s, err := service.New(service.Config{
			BlockSize:        4096,
			CollectThreshold: 1 << 30,
			Mapper:           vmem.GoHeap(),
			DisableScavenger: true,
		})
		biff.AssertNil(err)
		t.Cleanup(func() { s.Close() })

		b := Build(s, "test")
		b.WithInterceptors(
			RecoverFromPanic,
			PrettyErrorInterceptor,
		)

		api := apitest.NewWithHandler(b)

		a.Alternative("Release", func(a *biff.A) {
			resp := api.Request("GET", "/release").Do()
			biff.AssertEqual(resp.StatusCode, http.StatusOK)
		})

		a.Alternative("Classes", func(a *biff.A) {
			resp := api.Request("GET", "/v1/classes").Do()
			biff.AssertEqual(resp.StatusCode, http.StatusOK)

			classes := resp.BodyJson().([]any)
			biff.AssertEqual(len(classes), 24)
			biff.AssertEqualJson(classes[0], JSON{
				"cell_size":       16,
				"precise":         true,
				"cells_per_block": 256,
				"blocks":          0,
			})
		})

		a.Alternative("Allocate", func(a *biff.A) {
			resp := api.Request("POST", "/v1/allocate").
				WithBodyJson(JSON{
					"size":   100,
					"count":  3,
					"retain": true,
				}).Do()
			biff.AssertEqual(resp.StatusCode, http.StatusCreated)

			body := resp.BodyJson().(JSON)
			biff.AssertEqual(body["cell_size"], float64(112))
			biff.AssertEqual(body["allocated"], float64(3))
			biff.AssertEqual(body["retained"], float64(3))

			a.Alternative("Stats", func(a *biff.A) {
				resp := api.Request("GET", "/v1/stats").Do()
				biff.AssertEqual(resp.StatusCode, http.StatusOK)

				body := resp.BodyJson().(JSON)
				biff.AssertEqual(body["live_bytes"], float64(336))
				biff.AssertEqual(body["roots"], float64(3))
			})

			a.Alternative("Collect dropping roots", func(a *biff.A) {
				resp := api.Request("POST", "/v1/collect").
					WithBodyJson(JSON{"drop_roots": 1}).Do()
				biff.AssertEqual(resp.StatusCode, http.StatusOK)

				body := resp.BodyJson().(JSON)
				biff.AssertEqual(body["Roots"], float64(2))
				biff.AssertEqual(body["Marked"], float64(2))
			})

			a.Alternative("Collect without body", func(a *biff.A) {
				resp := api.Request("POST", "/v1/collect").Do()
				biff.AssertEqual(resp.StatusCode, http.StatusOK)

				body := resp.BodyJson().(JSON)
				biff.AssertEqual(body["Roots"], float64(3))
			})

			a.Alternative("Find blocks", func(a *biff.A) {
				resp := api.Request("POST", "/v1/blocks/find").
					WithBodyJson(JSON{
						"filter": JSON{"cell_size": 112},
					}).Do()
				biff.AssertEqual(resp.StatusCode, http.StatusOK)

				blocks := resp.BodyJson().([]any)
				biff.AssertEqual(len(blocks), 1)
				block := blocks[0].(JSON)
				biff.AssertEqual(block["live_cells"], float64(3))
				biff.AssertEqual(block["current"], true)
			})

			a.Alternative("Find blocks no match", func(a *biff.A) {
				resp := api.Request("POST", "/v1/blocks/find").
					WithBodyJson(JSON{
						"filter": JSON{"cell_size": JSON{"$lt": 100}},
					}).Do()
				biff.AssertEqual(resp.StatusCode, http.StatusOK)
				biff.AssertEqualJson(resp.BodyJson(), []any{})
			})
		})

		a.Alternative("Allocate too big", func(a *biff.A) {
			resp := api.Request("POST", "/v1/allocate").
				WithBodyJson(JSON{"size": 1 << 20}).Do()
			biff.AssertEqual(resp.StatusCode, http.StatusBadRequest)

			body := resp.BodyJson().(JSON)
			biff.AssertEqual(body["error"].(JSON)["description"], "Invalid argument")
		})

		a.Alternative("Reserve", func(a *biff.A) {
			resp := api.Request("POST", "/v1/virtual").
				WithBodyJson(JSON{
					"size":      5000,
					"alignment": 16,
				}).Do()
			biff.AssertEqual(resp.StatusCode, http.StatusCreated)

			body := resp.BodyJson().(JSON)
			biff.AssertEqual(body["size"], float64(8192))
			biff.AssertEqual(body["alignment"], float64(4096))
			biff.AssertEqual(body["kind"], "primary")
			address := uint64(body["address"].(float64))

			list := api.Request("GET", "/v1/virtual").Do()
			biff.AssertEqual(len(list.BodyJson().([]any)), 1)

			a.Alternative("Release", func(a *biff.A) {
				path := fmt.Sprintf("/v1/virtual/%#x", address)
				resp := api.Request("DELETE", path).Do()
				biff.AssertEqual(resp.StatusCode, http.StatusNoContent)

				resp = api.Request("DELETE", path).Do()
				biff.AssertEqual(resp.StatusCode, http.StatusNotFound)
			})

			a.Alternative("Scavenge", func(a *biff.A) {
				resp := api.Request("POST", "/v1/scavenge").Do()
				biff.AssertEqual(resp.StatusCode, http.StatusOK)

				body := resp.BodyJson().(JSON)
				biff.AssertEqual(body["Runs"], float64(1))
			})
		})

		a.Alternative("Release bad address", func(a *biff.A) {
			resp := api.Request("DELETE", "/v1/virtual/nope").Do()
			biff.AssertEqual(resp.StatusCode, http.StatusBadRequest)
		})

		a.Alternative("Not found", func(a *biff.A) {
			resp := api.Request("GET", "/v1/nothing").Do()
			biff.AssertEqual(resp.StatusCode, http.StatusNotFound)
		})
	})
}
