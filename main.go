package main

import (
	"fmt"
	"log"
	"net/http"
	"os"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"mockbase/api"
	"mockbase/auth"
	"mockbase/config"
	_ "mockbase/docs" // Import for side effect: registers swagger spec via init()
	"mockbase/rules"
	"mockbase/store"
)

// @title           Mockbase API
// @version         1.0.0

// @description     ## Mockbase API
// @description
// @description     **Purpose:** A single-binary, in-memory practice backend for **educational purposes only**. It provides a generic collection store with a query DSL, session-based authentication and a declarative rule engine. **It is NOT intended for production use.**
// @description
// @description     **Services:**
// @description     *   `/jsonstore/{collection}` - unauthenticated scratch-pad CRUD, no rules, no ownership.
// @description     *   `/data/{collection}` - rule-checked CRUD with ownership stamping and the query DSL.
// @description     *   `/users` - register, login, logout and `/users/me`.
// @description     *   `/util` - service flags; `POST /util {"throttle": true}` delays every response by 500-1000 ms.
// @description     *   `/admin/` - embedded admin panel.
// @description
// @description     **Query DSL (`/data` reads):**
// @description     *   `where`: clauses joined by `AND` or `OR` (never mixed). Operators: `<=`, `<`, `>=`, `>`, `=`, `like`, `in`. Literals are JSON, so strings must be quoted: `?where=pages>=100 AND genre="Fantasy"`.
// @description     *   `sortBy`: `prop[ desc][,prop2...]`, first key has top priority.
// @description     *   `offset` and `pageSize`: paging; `pageSize` defaults to 10 when present.
// @description     *   `distinct`: deduplicate by the named properties.
// @description     *   `count`: return only the number of matching records.
// @description     *   `select`: project each record to the named properties.
// @description     *   `load`: `alias=sourceProp:collection` resolves a related record into each result.
// @description
// @description     **Authentication:** pass the `accessToken` from register/login in the `X-Authorization` header. The `X-Admin` header bypasses rule denials.

// @host      localhost:3030
// @BasePath  /

// @securityDefinitions.apikey AccessToken
// @in header
// @name X-Authorization
func main() {
	// --- Configuration ---
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("CRITICAL: Failed to load configuration: %v", err)
	}

	// --- Storage ---
	storage := store.New()
	seed, err := loadSeedData(cfg.DataDir)
	if err != nil {
		log.Fatalf("CRITICAL: Failed to load seed data: %v", err)
	}
	storage.Seed(seed)
	for _, name := range storage.Collections() {
		log.Printf("INFO: seeded collection %q", name)
	}

	protected := store.New()
	provider := auth.NewProvider(protected, cfg.IdentityField, cfg.TokenSecret, cfg.BcryptCost)
	seedDemoUsers(provider, cfg.IdentityField)

	// --- Rules ---
	ruleEngine, err := loadRules(cfg.RulesFile)
	if err != nil {
		log.Fatalf("CRITICAL: Failed to compile rule set: %v", err)
	}

	// --- Dispatcher ---
	flags := api.NewFlags()
	plugins := []api.Plugin{
		api.StoragePlugin(storage, protected),
		api.AuthPlugin(provider),
		api.UtilPlugin(flags),
		api.RulesPlugin(ruleEngine),
	}
	services := map[string]*api.Service{
		"jsonstore": api.NewJSONStoreService(),
		"users":     api.NewUserService(),
		"data":      api.NewDataService(),
		"util":      api.NewUtilService(),
	}
	dispatcher := api.NewDispatcher(plugins, services, flags)

	// --- Gin Router Setup ---
	gin.SetMode(cfg.GinMode)
	router := gin.New()
	router.Use(gin.Logger())
	// Recovery middleware recovers from any panics and writes a 500 if there was one.
	router.Use(gin.Recovery())

	// --- Swagger Route ---
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	router.GET("/docs", func(c *gin.Context) {
		c.Redirect(http.StatusFound, "/swagger/index.html")
	})

	// Everything else flows through the generic service dispatcher.
	router.NoRoute(dispatcher.Handle)

	// --- Start Server ---
	listenAddr := fmt.Sprintf("%s:%s", cfg.ListenAddress, cfg.ListenPort)
	log.Printf("INFO: Starting server on %s", listenAddr)
	log.Printf("INFO: Admin panel at http://%s/admin/", listenAddr)

	server := &http.Server{
		Addr:    listenAddr,
		Handler: router,
	}
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("CRITICAL: Server failed to start: %v", err)
	}
}

// loadRules compiles the configured rule set, or the built-in demo rules
// when no file is given.
func loadRules(path string) (*rules.Engine, error) {
	if path == "" {
		return rules.Compile([]byte(defaultRules))
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return rules.Compile(raw)
}

// defaultRules locks the protected users collection down to its owner and
// opens the demo books collection for reading.
const defaultRules = `{
	"users": {
		".create": false,
		".read": ["Owner"],
		".update": false,
		".delete": false
	},
	"books": {
		".read": true,
		".create": ["User"],
		".update": ["Owner"],
		".delete": ["Owner"]
	}
}`
