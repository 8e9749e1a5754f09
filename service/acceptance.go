package service

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/fulldump/apitest"
	"github.com/fulldump/biff"
)

type JSON = map[string]interface{}

// Acceptance runs against an api built with an embedded to tree threshold of
// 3 and no way back.
func Acceptance(a *biff.A, apiRequest func(method, path string) *apitest.Request) {

	a.Alternative("Create document", func(a *biff.A) {
		resp := apiRequest("POST", "/documents").
			WithBodyJson(JSON{
				"cluster": 1,
				"fields": JSON{
					"name": "alice",
				},
			}).Do()
		SaveExample(resp, "Create document", ``)

		biff.AssertEqual(resp.StatusCode, http.StatusCreated)
		expectedBody := JSON{
			"rid":     "#1:0",
			"version": 1,
			"fields":  JSON{"name": "alice"},
			"bags":    JSON{},
		}
		biff.AssertEqualJson(resp.BodyJson(), expectedBody)

		a.Alternative("Retrieve document", func(a *biff.A) {
			resp := apiRequest("GET", "/documents/1/0").Do()
			SaveExample(resp, "Retrieve document", ``)

			biff.AssertEqual(resp.StatusCode, http.StatusOK)
			biff.AssertEqualJson(resp.BodyJson(), expectedBody)
		})

		a.Alternative("Retrieve document - not found", func(a *biff.A) {
			resp := apiRequest("GET", "/documents/1/99").Do()
			SaveExample(resp, "Retrieve document - not found", ``)

			biff.AssertEqual(resp.StatusCode, http.StatusNotFound)
			biff.AssertEqualJson(resp.BodyJson(), JSON{
				"error": JSON{
					"message":     "document not found: #1:99",
					"description": "document not found",
				},
			})
		})

		a.Alternative("Add links", func(a *biff.A) {
			resp := apiRequest("POST", "/documents/1/0:addLink").
				WithBodyJson(JSON{
					"bag":     "friends",
					"targets": []string{"#2:0", "#2:1"},
				}).Do()
			SaveExample(resp, "Add links", ``)

			biff.AssertEqual(resp.StatusCode, http.StatusOK)
			biff.AssertEqualJson(resp.BodyJson(), JSON{
				"rid":     "#1:0",
				"version": 2,
				"fields":  JSON{"name": "alice"},
				"bags": JSON{
					"friends": JSON{"size": 2, "embedded": true},
				},
			})

			a.Alternative("Grow into a tree", func(a *biff.A) {
				resp := apiRequest("POST", "/documents/1/0:addLink").
					WithBodyJson(JSON{
						"bag":     "friends",
						"targets": []string{"#2:2", "#2:3", "#2:2"},
					}).Do()
				SaveExample(resp, "Add links - tree", `
					Bags with more entries than the embedded threshold are
					moved to a tree. The pointer locates the tree root.
				`)

				biff.AssertEqual(resp.StatusCode, http.StatusOK)
				body := resp.BodyJsonMap()
				friends := body["bags"].(JSON)["friends"].(JSON)
				biff.AssertEqual(friends["size"], float64(5))
				biff.AssertEqual(friends["embedded"], false)
				biff.AssertNotNil(friends["pointer"])

				a.Alternative("List tree links", func(a *biff.A) {
					resp := apiRequest("POST", "/documents/1/0:listLinks").
						WithBodyJson(JSON{"bag": "friends"}).Do()

					biff.AssertEqual(resp.StatusCode, http.StatusOK)
					assertLines(resp.BodyString(), []JSON{
						{"rid": "#2:0"},
						{"rid": "#2:1"},
						{"rid": "#2:2"},
						{"rid": "#2:2"},
						{"rid": "#2:3"},
					})
				})
			})

			a.Alternative("Remove link", func(a *biff.A) {
				resp := apiRequest("POST", "/documents/1/0:removeLink").
					WithBodyJson(JSON{
						"bag":     "friends",
						"targets": []string{"#2:0", "#2:9"},
					}).Do()
				SaveExample(resp, "Remove link", ``)

				biff.AssertEqual(resp.StatusCode, http.StatusOK)
				biff.AssertEqualJson(resp.BodyJson(), JSON{
					"rid":     "#1:0",
					"version": 3,
					"fields":  JSON{"name": "alice"},
					"bags": JSON{
						"friends": JSON{"size": 1, "embedded": true},
					},
				})
			})

			a.Alternative("Remove link - bag not found", func(a *biff.A) {
				resp := apiRequest("POST", "/documents/1/0:removeLink").
					WithBodyJson(JSON{
						"bag":     "enemies",
						"targets": []string{"#2:0"},
					}).Do()

				biff.AssertEqual(resp.StatusCode, http.StatusNotFound)
			})

			a.Alternative("List links", func(a *biff.A) {
				resp := apiRequest("POST", "/documents/1/0:listLinks").
					WithBodyJson(JSON{"bag": "friends"}).Do()
				SaveExample(resp, "List links", ``)

				biff.AssertEqual(resp.StatusCode, http.StatusOK)
				assertLines(resp.BodyString(), []JSON{
					{"rid": "#2:0"},
					{"rid": "#2:1"},
				})
			})
		})

		a.Alternative("Add links - invalid target", func(a *biff.A) {
			resp := apiRequest("POST", "/documents/1/0:addLink").
				WithBodyJson(JSON{
					"bag":     "friends",
					"targets": []string{"#-1:4"},
				}).Do()

			biff.AssertEqual(resp.StatusCode, http.StatusBadRequest)

			resp = apiRequest("GET", "/documents/1/0").Do()
			biff.AssertEqualJson(resp.BodyJson(), expectedBody)
		})

		a.Alternative("Add links - bag required", func(a *biff.A) {
			resp := apiRequest("POST", "/documents/1/0:addLink").
				WithBodyJson(JSON{
					"targets": []string{"#2:0"},
				}).Do()

			biff.AssertEqual(resp.StatusCode, http.StatusBadRequest)
		})
	})

	a.Alternative("Linked documents", func(a *biff.A) {

		for _, name := range []string{"bob", "carol"} {
			resp := apiRequest("POST", "/documents").
				WithBodyJson(JSON{
					"cluster": 2,
					"fields":  JSON{"name": name},
				}).Do()
			biff.AssertEqual(resp.StatusCode, http.StatusCreated)
		}

		resp := apiRequest("POST", "/documents").
			WithBodyJson(JSON{
				"cluster": 1,
				"fields":  JSON{"name": "alice"},
				"links": JSON{
					"friends": []string{"#2:0", "#2:1", "#2:7"},
				},
			}).Do()
		SaveExample(resp, "Create document with links", ``)

		biff.AssertEqual(resp.StatusCode, http.StatusCreated)
		biff.AssertEqualJson(resp.BodyJson(), JSON{
			"rid":     "#1:0",
			"version": 1,
			"fields":  JSON{"name": "alice"},
			"bags": JSON{
				"friends": JSON{"size": 3, "embedded": true},
			},
		})

		a.Alternative("List resolved links", func(a *biff.A) {
			resp := apiRequest("POST", "/documents/1/0:listLinks").
				WithBodyJson(JSON{
					"bag":     "friends",
					"resolve": true,
				}).Do()
			SaveExample(resp, "List links - resolved", `
				Links to deleted documents are returned with missing true.
			`)

			biff.AssertEqual(resp.StatusCode, http.StatusOK)
			assertLines(resp.BodyString(), []JSON{
				{"rid": "#2:0", "fields": JSON{"name": "bob"}},
				{"rid": "#2:1", "fields": JSON{"name": "carol"}},
				{"rid": "#2:7", "missing": true},
			})
		})

		a.Alternative("List links with filter", func(a *biff.A) {
			resp := apiRequest("POST", "/documents/1/0:listLinks").
				WithBodyJson(JSON{
					"bag":     "friends",
					"resolve": true,
					"filter":  JSON{"name": "carol"},
				}).Do()
			SaveExample(resp, "List links - filter", ``)

			biff.AssertEqual(resp.StatusCode, http.StatusOK)
			assertLines(resp.BodyString(), []JSON{
				{"rid": "#2:1", "fields": JSON{"name": "carol"}},
			})
		})

		a.Alternative("List links with skip and limit", func(a *biff.A) {
			resp := apiRequest("POST", "/documents/1/0:listLinks").
				WithBodyJson(JSON{
					"bag":   "friends",
					"skip":  1,
					"limit": 1,
				}).Do()

			biff.AssertEqual(resp.StatusCode, http.StatusOK)
			assertLines(resp.BodyString(), []JSON{
				{"rid": "#2:1"},
			})
		})

		a.Alternative("List links with filter - not resolved", func(a *biff.A) {
			resp := apiRequest("POST", "/documents/1/0:listLinks").
				WithBodyJson(JSON{
					"bag":    "friends",
					"filter": JSON{"name": "carol"},
				}).Do()

			biff.AssertEqual(resp.StatusCode, http.StatusBadRequest)
		})

		a.Alternative("Stats", func(a *biff.A) {
			resp := apiRequest("GET", "/stats").Do()
			SaveExample(resp, "Stats", ``)

			biff.AssertEqual(resp.StatusCode, http.StatusOK)
			biff.AssertEqualJson(resp.BodyJson(), JSON{
				"status":     "operating",
				"documents":  3,
				"trees":      0,
				"cache_size": 0,
				"evictable":  0,
				"thresholds": JSON{
					"embedded_to_tree": 3,
					"tree_to_embedded": -1,
				},
			})
		})
	})

	a.Alternative("Create document - malformed JSON", func(a *biff.A) {
		resp := apiRequest("POST", "/documents").
			WithBodyString(`{"cluster": }`).Do()

		biff.AssertEqual(resp.StatusCode, http.StatusBadRequest)
	})

	a.Alternative("Create document - invalid cluster", func(a *biff.A) {
		resp := apiRequest("POST", "/documents").
			WithBodyJson(JSON{"cluster": -1}).Do()

		biff.AssertEqual(resp.StatusCode, http.StatusBadRequest)
	})
}

func assertLines(body string, expected []JSON) {
	dec := json.NewDecoder(strings.NewReader(body))
	obtained := []interface{}{}
	for dec.More() {
		var row interface{}
		err := dec.Decode(&row)
		biff.AssertNil(err)
		obtained = append(obtained, row)
	}
	biff.AssertEqualJson(obtained, expected)
}
