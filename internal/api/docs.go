package api

import (
	"encoding/json"
	"net/http"
	"regexp"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/go-openapi/spec"
	httpSwagger "github.com/swaggo/http-swagger"
	"github.com/swaggo/swag"
	"go.uber.org/zap"

	"github.com/devops-promotions/promotions/internal/promotion"
)

// DocsOptions describe the generated Swagger document.
type DocsOptions struct {
	Version          string
	Title            string
	Description      string
	DefaultNamespace string
	DefaultLabel     string
	DocPath          string
	Prefix           string
}

// DefaultDocsOptions returns the documentation settings of the promotions API.
func DefaultDocsOptions() DocsOptions {
	return DocsOptions{
		Version:          "1.0.0",
		Title:            "Promotions REST API Service",
		Description:      "Ecommerce promotions management microservice.",
		DefaultNamespace: "promotions",
		DefaultLabel:     "Promotions operations",
		DocPath:          "/apidocs",
		Prefix:           "/api",
	}
}

// DocsInstance is the swag registry key of the service document. swag never
// forgets a registration, so it is registered once per process and resolves
// to the most recently registered Docs.
const DocsInstance = "promotions"

var (
	registerSwagOnce sync.Once
	latestDocs       atomic.Pointer[Docs]
)

type swagDocs struct{}

func (swagDocs) ReadDoc() string {
	if d := latestDocs.Load(); d != nil {
		return d.ReadDoc()
	}
	return "{}"
}

// Docs builds a Swagger 2.0 document from the routes registered on a router
// and serves it together with Swagger UI.
type Docs struct {
	opts   DocsOptions
	logger *zap.Logger
	router *Router
}

// NewDocs creates the documentation layer.
func NewDocs(opts DocsOptions, logger *zap.Logger) *Docs {
	if logger == nil {
		logger = zap.NewNop()
	}
	opts.DocPath = "/" + strings.Trim(opts.DocPath, "/")
	return &Docs{
		opts:   opts,
		logger: logger,
	}
}

// Options returns the documentation settings.
func (d *Docs) Options() DocsOptions {
	return d.opts
}

// Register serves the document at DocPath/doc.json and mounts Swagger UI
// under DocPath. The document is generated on every read, so routes
// registered afterwards are still described. Each Docs serves its own
// router's document; the shared swag entry follows the latest Register.
func (d *Docs) Register(router *Router) error {
	if d.router != nil {
		return ErrDuplicateRoute
	}
	d.router = router

	docPath := d.opts.DocPath
	if err := router.Handle(Route{Method: http.MethodGet, Path: docPath, Summary: "API documentation"},
		func(w http.ResponseWriter, r *http.Request) {
			http.Redirect(w, r, docPath+"/", http.StatusMovedPermanently)
		}); err != nil {
		return err
	}

	if err := router.Handle(Route{Method: http.MethodGet, Path: docPath + "/doc.json", Summary: "Swagger document"},
		func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", contentTypeJSON)
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(d.ReadDoc()))
		}); err != nil {
		return err
	}

	ui := httpSwagger.Handler(
		httpSwagger.URL(docPath+"/doc.json"),
		httpSwagger.InstanceName(DocsInstance),
	)
	if err := router.Mount(docPath, ui); err != nil {
		return err
	}

	latestDocs.Store(d)
	registerSwagOnce.Do(func() {
		swag.Register(DocsInstance, swagDocs{})
	})
	return nil
}

// ReadDoc implements swag.Swagger.
func (d *Docs) ReadDoc() string {
	var routes []Route
	if d.router != nil {
		routes = d.router.Routes()
	}
	data, err := json.Marshal(d.Document(routes))
	if err != nil {
		d.logger.Error("render swagger document", zap.Error(err))
		return "{}"
	}
	return string(data)
}

var muxParam = regexp.MustCompile(`\{([^}.$]+)(\.\.\.)?\}`)

// Document describes the namespaced routes.
func (d *Docs) Document(routes []Route) *spec.Swagger {
	paths := map[string]spec.PathItem{}
	tags := map[string]struct{}{}

	for _, route := range routes {
		if route.Namespace == "" {
			continue
		}
		tags[route.Namespace] = struct{}{}

		path := muxParam.ReplaceAllString(route.Path, "{$1}")
		item := paths[path]
		op := d.operation(route)
		switch route.Method {
		case http.MethodGet:
			item.Get = op
		case http.MethodPost:
			item.Post = op
		case http.MethodPut:
			item.Put = op
		case http.MethodDelete:
			item.Delete = op
		case http.MethodPatch:
			item.Patch = op
		}
		paths[path] = item
	}

	names := make([]string, 0, len(tags))
	for name := range tags {
		names = append(names, name)
	}
	sort.Strings(names)
	specTags := make([]spec.Tag, 0, len(names))
	for _, name := range names {
		desc := ""
		if name == d.opts.DefaultNamespace {
			desc = d.opts.DefaultLabel
		}
		specTags = append(specTags, spec.NewTag(name, desc, nil))
	}

	basePath := d.opts.Prefix
	if basePath == "" {
		basePath = "/"
	}

	return &spec.Swagger{
		SwaggerProps: spec.SwaggerProps{
			Swagger:  "2.0",
			Consumes: []string{contentTypeJSON},
			Produces: []string{contentTypeJSON},
			Info: &spec.Info{
				InfoProps: spec.InfoProps{
					Title:       d.opts.Title,
					Description: d.opts.Description,
					Version:     d.opts.Version,
				},
			},
			BasePath:    basePath,
			Paths:       &spec.Paths{Paths: paths},
			Definitions: spec.Definitions{"Promotion": promotionSchema()},
			Tags:        specTags,
		},
	}
}

func (d *Docs) operation(route Route) *spec.Operation {
	id := strings.ToLower(route.Method) + strings.NewReplacer("/", "_", "{", "", "}", "").Replace(route.Path)
	op := spec.NewOperation(id).
		WithTags(route.Namespace).
		WithSummary(route.Summary)

	for _, m := range muxParam.FindAllStringSubmatch(route.Path, -1) {
		op.AddParam(spec.PathParam(m[1]).Typed("integer", "int32").WithDescription("The promotion identifier"))
	}
	for _, q := range route.Query {
		op.AddParam(spec.QueryParam(q).Typed("string", "").WithDescription("Filter by " + q))
	}
	if route.Body {
		op.WithConsumes(contentTypeJSON)
		op.AddParam(spec.BodyParam("payload", spec.RefSchema("#/definitions/Promotion")).AsRequired())
	}

	codes := make([]int, 0, len(route.Responses))
	for code := range route.Responses {
		codes = append(codes, code)
	}
	sort.Ints(codes)
	for _, code := range codes {
		resp := spec.NewResponse().WithDescription(route.Responses[code])
		if code == http.StatusOK || code == http.StatusCreated {
			resp.WithSchema(spec.RefSchema("#/definitions/Promotion"))
		}
		op.RespondsWith(code, resp)
	}
	return op
}

func promotionSchema() spec.Schema {
	typeNames := make([]any, 0, len(promotion.Types()))
	for _, t := range promotion.Types() {
		typeNames = append(typeNames, t.String())
	}

	schema := spec.Schema{}
	schema.Typed("object", "")
	schema.SetProperty("id", *spec.Int64Property().WithDescription("Assigned by the service"))
	schema.SetProperty("name", *spec.StringProperty().WithMinLength(1).WithMaxLength(promotion.MaxNameLength))
	schema.SetProperty("type", *spec.StringProperty().WithEnum(typeNames...))
	schema.SetProperty("discount", *spec.Int32Property().WithMinimum(0, false).WithMaximum(100, false).AsNullable())
	schema.SetProperty("customer", *spec.Int64Property().AsNullable())
	schema.SetProperty("start_date", *spec.DateProperty())
	schema.SetProperty("end_date", *spec.DateProperty())
	schema.WithRequired("name", "type", "discount", "customer", "start_date", "end_date")
	return schema
}
