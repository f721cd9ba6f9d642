// Package gql exposes the product catalogue as a GraphQL schema.
package gql

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/graphql-go/graphql"

	"github.com/JonMunkholm/partsync/internal/core"
	"github.com/JonMunkholm/partsync/internal/logging"
)

// Resolver answers the products query.
type Resolver interface {
	SearchProducts(ctx context.Context, q core.ProductQuery) ([]core.Product, error)
}

func productField(typ graphql.Output, get func(core.Product) any) *graphql.Field {
	return &graphql.Field{
		Type: typ,
		Resolve: func(p graphql.ResolveParams) (any, error) {
			prod, ok := p.Source.(core.Product)
			if !ok {
				return nil, fmt.Errorf("unexpected source %T", p.Source)
			}
			return get(prod), nil
		},
	}
}

var productType = graphql.NewObject(graphql.ObjectConfig{
	Name: "Product",
	Fields: graphql.Fields{
		"id":         productField(graphql.NewNonNull(graphql.Int), func(p core.Product) any { return p.ID }),
		"partNumber": productField(graphql.NewNonNull(graphql.String), func(p core.Product) any { return p.PartNumber }),
		"branchId":   productField(graphql.NewNonNull(graphql.String), func(p core.Product) any { return p.BranchID }),
		"partPrice":  productField(graphql.NewNonNull(graphql.Float), func(p core.Product) any { return p.PartPrice }),
		"shortDesc": productField(graphql.String, func(p core.Product) any {
			if p.ShortDesc == nil {
				return nil
			}
			return *p.ShortDesc
		}),
		"createdat": productField(graphql.DateTime, func(p core.Product) any { return p.CreatedAt }),
		"updatedat": productField(graphql.DateTime, func(p core.Product) any { return p.UpdatedAt }),
	},
})

// NewSchema builds the schema with a single products query.
func NewSchema(r Resolver) (graphql.Schema, error) {
	query := graphql.NewObject(graphql.ObjectConfig{
		Name: "Query",
		Fields: graphql.Fields{
			"products": &graphql.Field{
				Type: graphql.NewList(productType),
				Args: graphql.FieldConfigArgument{
					"skip":       &graphql.ArgumentConfig{Type: graphql.Int, DefaultValue: 0},
					"limit":      &graphql.ArgumentConfig{Type: graphql.Int, DefaultValue: core.DefaultListLimit},
					"partNumber": &graphql.ArgumentConfig{Type: graphql.String},
					"branchId":   &graphql.ArgumentConfig{Type: graphql.String},
				},
				Resolve: func(p graphql.ResolveParams) (any, error) {
					q := core.ProductQuery{
						Skip:  intArg(p.Args, "skip", 0),
						Limit: intArg(p.Args, "limit", core.DefaultListLimit),
					}
					q.PartNumber, _ = p.Args["partNumber"].(string)
					q.BranchID, _ = p.Args["branchId"].(string)

					products, err := r.SearchProducts(p.Context, q)
					if err != nil {
						logging.FromContext(p.Context).Error("graphql products query failed", "error", err)
						return nil, fmt.Errorf("%s", core.FormatUserError(err))
					}
					return products, nil
				},
			},
		},
	})

	return graphql.NewSchema(graphql.SchemaConfig{Query: query})
}

func intArg(args map[string]any, name string, def int) int {
	if v, ok := args[name].(int); ok {
		return v
	}
	return def
}

// Request is a GraphQL request body.
type Request struct {
	Query         string         `json:"query"`
	OperationName string         `json:"operationName,omitempty"`
	Variables     map[string]any `json:"variables,omitempty"`
}

// Execute runs req against schema.
func Execute(ctx context.Context, schema graphql.Schema, req Request) *graphql.Result {
	return graphql.Do(graphql.Params{
		Schema:         schema,
		RequestString:  req.Query,
		OperationName:  req.OperationName,
		VariableValues: req.Variables,
		Context:        ctx,
	})
}

// Handler serves GraphQL over HTTP. GET reads the query from the "query"
// parameter; POST expects a JSON body.
func Handler(schema graphql.Schema) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req Request
		switch r.Method {
		case http.MethodGet:
			req.Query = r.URL.Query().Get("query")
			req.OperationName = r.URL.Query().Get("operationName")
			if vars := r.URL.Query().Get("variables"); vars != "" {
				if err := json.Unmarshal([]byte(vars), &req.Variables); err != nil {
					writeJSON(w, r, http.StatusBadRequest, map[string]any{"errors": []map[string]string{{"message": "invalid json in variables"}}})
					return
				}
			}
		case http.MethodPost:
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				writeJSON(w, r, http.StatusBadRequest, map[string]any{"errors": []map[string]string{{"message": "invalid json body"}}})
				return
			}
		default:
			w.Header().Set("Allow", "GET, POST")
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}

		if req.Query == "" {
			writeJSON(w, r, http.StatusBadRequest, map[string]any{"errors": []map[string]string{{"message": "query is required"}}})
			return
		}

		writeJSON(w, r, http.StatusOK, Execute(r.Context(), schema, req))
	}
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.FromContext(r.Context()).Error("graphql response encode failed", "error", err)
	}
}
