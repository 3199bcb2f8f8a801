package modloader

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"testing"

	"github.com/cucumber/godog"
)

// ModuleLoaderBDDTestContext holds the state shared by the steps of one scenario.
type ModuleLoaderBDDTestContext struct {
	registry     *Registry
	constructed  []string
	initialized  []string
	constructs   map[string]int
	inits        map[string]int
	lastError    error
	defineResult error
}

type bddModule struct {
	name string
	ctx  *ModuleLoaderBDDTestContext
}

func (m *bddModule) Init() {
	m.ctx.inits[m.name]++
	m.ctx.initialized = append(m.ctx.initialized, m.name)
}

func (c *ModuleLoaderBDDTestContext) iHaveAnEmptyModuleRegistry() error {
	c.registry = NewRegistry()
	c.constructed = nil
	c.initialized = nil
	c.constructs = make(map[string]int)
	c.inits = make(map[string]int)
	c.lastError = nil
	c.defineResult = nil
	return nil
}

func (c *ModuleLoaderBDDTestContext) factoryFor(name string) Factory {
	return func(ctx context.Context, deps []any) (any, error) {
		c.constructs[name]++
		c.constructed = append(c.constructed, name)
		return &bddModule{name: name, ctx: c}, nil
	}
}

func splitNames(list string) []string {
	var names []string
	for _, n := range strings.Split(list, ",") {
		if n = strings.TrimSpace(n); n != "" {
			names = append(names, n)
		}
	}
	return names
}

func (c *ModuleLoaderBDDTestContext) moduleWithNoDependencies(name string) error {
	_, err := c.registry.Define(name, c.factoryFor(name))
	return err
}

func (c *ModuleLoaderBDDTestContext) moduleDependingOn(name, deps string) error {
	_, err := c.registry.Define(name, c.factoryFor(name), splitNames(deps)...)
	return err
}

func (c *ModuleLoaderBDDTestContext) iDefineModuleDependingOn(name, deps string) error {
	_, c.defineResult = c.registry.Define(name, c.factoryFor(name), splitNames(deps)...)
	return nil
}

func (c *ModuleLoaderBDDTestContext) iLoadAllModules() error {
	c.lastError = c.registry.LoadAll(context.Background())
	return nil
}

func (c *ModuleLoaderBDDTestContext) iLoadModule(name string) error {
	_, c.lastError = c.registry.Load(context.Background(), name)
	return nil
}

func (c *ModuleLoaderBDDTestContext) iInitializeModule(name string) error {
	_, c.lastError = c.registry.Initialize(context.Background(), name)
	return c.lastError
}

func (c *ModuleLoaderBDDTestContext) iUnloadModule(name string) error {
	return c.registry.Unload(name)
}

func (c *ModuleLoaderBDDTestContext) loadingShouldSucceed() error {
	if c.lastError != nil {
		return fmt.Errorf("expected success, got: %w", c.lastError)
	}
	return nil
}

func (c *ModuleLoaderBDDTestContext) theRegistryShouldReportLoadedModules(n int) error {
	if got := c.registry.Info().Loaded; got != n {
		return fmt.Errorf("expected %d loaded modules, got %d", n, got)
	}
	return nil
}

func (c *ModuleLoaderBDDTestContext) moduleInfo(name string) (ModuleInfo, error) {
	info, ok := c.registry.Info().Module(name)
	if !ok {
		return ModuleInfo{}, fmt.Errorf("module %s not registered", name)
	}
	return info, nil
}

func (c *ModuleLoaderBDDTestContext) moduleShouldBeInitialized(name string) error {
	info, err := c.moduleInfo(name)
	if err != nil {
		return err
	}
	if !info.Initialized {
		return fmt.Errorf("module %s is not initialized", name)
	}
	return nil
}

func (c *ModuleLoaderBDDTestContext) moduleShouldNotBeLoaded(name string) error {
	info, err := c.moduleInfo(name)
	if err != nil {
		return err
	}
	if info.Loaded {
		return fmt.Errorf("module %s is still loaded", name)
	}
	return nil
}

func (c *ModuleLoaderBDDTestContext) moduleShouldNotBeInitialized(name string) error {
	info, err := c.moduleInfo(name)
	if err != nil {
		return err
	}
	if info.Initialized {
		return fmt.Errorf("module %s is still initialized", name)
	}
	return nil
}

func (c *ModuleLoaderBDDTestContext) moduleShouldHaveBeenInitializedTimes(name string, n int) error {
	if got := c.inits[name]; got != n {
		return fmt.Errorf("expected %s to be initialized %d times, got %d", name, n, got)
	}
	return nil
}

func (c *ModuleLoaderBDDTestContext) moduleShouldHaveBeenConstructedTimes(name string, n int) error {
	if got := c.constructs[name]; got != n {
		return fmt.Errorf("expected %s to be constructed %d times, got %d", name, n, got)
	}
	return nil
}

func (c *ModuleLoaderBDDTestContext) theDefinitionShouldFailWithACircularDependencyError() error {
	if c.defineResult == nil {
		return errors.New("expected a circular dependency error, got none")
	}
	var cycleErr *CircularDependencyError
	if !errors.As(c.defineResult, &cycleErr) {
		return fmt.Errorf("expected CircularDependencyError, got %T: %v", c.defineResult, c.defineResult)
	}
	return nil
}

func (c *ModuleLoaderBDDTestContext) theErrorMessageShouldContain(text string) error {
	err := c.defineResult
	if err == nil {
		err = c.lastError
	}
	if err == nil {
		return errors.New("no error to check")
	}
	if !strings.Contains(err.Error(), text) {
		return fmt.Errorf("error %q does not contain %q", err.Error(), text)
	}
	return nil
}

func (c *ModuleLoaderBDDTestContext) modulesShouldHaveBeenConstructedInOrder(order string) error {
	if want := splitNames(order); !slices.Equal(want, c.constructed) {
		return fmt.Errorf("expected construction order %v, got %v", want, c.constructed)
	}
	return nil
}

func (c *ModuleLoaderBDDTestContext) modulesShouldHaveBeenInitializedInOrder(order string) error {
	if want := splitNames(order); !slices.Equal(want, c.initialized) {
		return fmt.Errorf("expected initialization order %v, got %v", want, c.initialized)
	}
	return nil
}

func (c *ModuleLoaderBDDTestContext) loadingShouldFailWithAMissingModuleErrorNaming(name string) error {
	var notFound *ModuleNotFoundError
	if !errors.As(c.lastError, &notFound) {
		return fmt.Errorf("expected ModuleNotFoundError, got %v", c.lastError)
	}
	if notFound.Name != name {
		return fmt.Errorf("expected missing module %s, got %s", name, notFound.Name)
	}
	return nil
}

func TestModuleLoaderBDD(t *testing.T) {
	suite := godog.TestSuite{
		ScenarioInitializer: func(ctx *godog.ScenarioContext) {
			c := &ModuleLoaderBDDTestContext{}

			ctx.Step(`^I have an empty module registry$`, c.iHaveAnEmptyModuleRegistry)
			ctx.Step(`^module "([^"]*)" with no dependencies$`, c.moduleWithNoDependencies)
			ctx.Step(`^module "([^"]*)" depending on "([^"]*)"$`, c.moduleDependingOn)
			ctx.Step(`^I define module "([^"]*)" depending on "([^"]*)"$`, c.iDefineModuleDependingOn)

			ctx.Step(`^I load all modules$`, c.iLoadAllModules)
			ctx.Step(`^I load module "([^"]*)"$`, c.iLoadModule)
			ctx.Step(`^I initialize module "([^"]*)"$`, c.iInitializeModule)
			ctx.Step(`^I unload module "([^"]*)"$`, c.iUnloadModule)

			ctx.Step(`^loading should succeed$`, c.loadingShouldSucceed)
			ctx.Step(`^loading should fail with a missing module error naming "([^"]*)"$`, c.loadingShouldFailWithAMissingModuleErrorNaming)
			ctx.Step(`^the registry should report (\d+) loaded modules$`, c.theRegistryShouldReportLoadedModules)
			ctx.Step(`^module "([^"]*)" should be initialized$`, c.moduleShouldBeInitialized)
			ctx.Step(`^module "([^"]*)" should not be loaded$`, c.moduleShouldNotBeLoaded)
			ctx.Step(`^module "([^"]*)" should not be initialized$`, c.moduleShouldNotBeInitialized)
			ctx.Step(`^module "([^"]*)" should have been initialized (\d+) times?$`, c.moduleShouldHaveBeenInitializedTimes)
			ctx.Step(`^module "([^"]*)" should have been constructed (\d+) times?$`, c.moduleShouldHaveBeenConstructedTimes)
			ctx.Step(`^the definition should fail with a circular dependency error$`, c.theDefinitionShouldFailWithACircularDependencyError)
			ctx.Step(`^the error message should contain "([^"]*)"$`, c.theErrorMessageShouldContain)
			ctx.Step(`^modules should have been constructed in order "([^"]*)"$`, c.modulesShouldHaveBeenConstructedInOrder)
			ctx.Step(`^modules should have been initialized in order "([^"]*)"$`, c.modulesShouldHaveBeenInitializedInOrder)
		},
		Options: &godog.Options{
			Format:   "pretty",
			Paths:    []string{"features/module_loader.feature"},
			TestingT: t,
		},
	}

	if suite.Run() != 0 {
		t.Fatal("non-zero status returned, failed to run BDD tests")
	}
}
