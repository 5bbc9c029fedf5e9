package vbforge

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// MandatoryFiles is the fixed output layout of a generated project.
// Every run must produce exactly these names.
var MandatoryFiles = []string{
	"MyWindowsService.csproj",
	"Program.cs",
	"Worker.cs",
	"appsettings.json",
	"appsettings.Development.json",
	"Properties/launchSettings.json",
}

// Generator renders the aggregated conversion context into the fixed
// .NET 9 Worker Service layout. Purely deterministic, local
// computation: no external calls. A missing mandatory output file is
// a contract violation in upstream data and fails the run.
type Generator struct {
	agent *StageAgent
}

func NewGenerator(agent *StageAgent) *Generator {
	return &Generator{agent: agent}
}

func (g *Generator) Agent() *StageAgent { return g.agent }

// Generate renders the project files from the YAML summary and the
// context map. An unreadable summary falls back to a minimal worker
// template; a missing mandated file returns ErrProjectValidation.
func (g *Generator) Generate(yamlSummary string, contextMap ContextMap) (map[string]string, error) {
	g.agent.Log("INFO", "Starting code generation")

	var worker string
	var summary ProjectSummary
	if err := yaml.Unmarshal([]byte(yamlSummary), &summary); err != nil {
		g.agent.Log("ERROR", fmt.Sprintf("Error parsing YAML summary: %v", err))
		worker = g.fallbackWorker(contextMap)
	} else {
		g.agent.Log("INFO", fmt.Sprintf("Generating Worker.cs with %d procedures and %d globals",
			len(summary.Procedures), len(summary.Globals)))
		worker = g.buildWorker(summary, contextMap)
	}

	files := map[string]string{
		"MyWindowsService.csproj":        csprojTemplate,
		"Program.cs":                     programTemplate,
		"Worker.cs":                      worker,
		"appsettings.json":               appSettingsTemplate,
		"appsettings.Development.json":   devAppSettingsTemplate,
		"Properties/launchSettings.json": launchSettingsTemplate,
	}

	for _, name := range MandatoryFiles {
		if files[name] == "" {
			g.agent.Log("ERROR", fmt.Sprintf("Project validation error: missing %s", name))
			return nil, fmt.Errorf("%w: missing %s", ErrProjectValidation, name)
		}
	}

	g.agent.Log("INFO", "Code generation completed")
	return files, nil
}

var namespaceSanitizeRe = regexp.MustCompile(`[^a-zA-Z0-9]`)

func sanitizeNamespace(name string) string {
	cleaned := namespaceSanitizeRe.ReplaceAllString(name, "")
	if cleaned == "" {
		return "ConvertedService"
	}
	return cleaned
}

var vb6TypeMap = map[string]string{
	"Integer":  "int",
	"String":   "string",
	"Boolean":  "bool",
	"Long":     "long",
	"Byte":     "byte",
	"Single":   "float",
	"Double":   "double",
	"Currency": "decimal",
	"Date":     "DateTime",
	"Object":   "object",
	"Variant":  "object",
	"void":     "void",
}

func vb6TypeToCSharp(vb6Type string) string {
	if t, ok := vb6TypeMap[vb6Type]; ok {
		return t
	}
	return "object"
}

func defaultReturn(csharpType string) string {
	switch csharpType {
	case "void":
		return ""
	case "bool":
		return "return false;"
	case "int", "long", "byte":
		return "return -1;"
	case "string":
		return "return string.Empty;"
	default:
		return fmt.Sprintf("return default(%s);", csharpType)
	}
}

func toCamelCase(name string) string {
	if name == "" {
		return name
	}
	return strings.ToLower(name[:1]) + name[1:]
}

func fieldNameFor(moduleName, name string) string {
	if moduleName != "" {
		return "_" + toCamelCase(moduleName+"_"+name)
	}
	return "_" + toCamelCase(name)
}

func convertParameters(params []string) string {
	if len(params) == 0 {
		return ""
	}
	converted := make([]string, 0, len(params))
	for _, p := range params {
		name, typ, found := strings.Cut(p, ":")
		if found {
			converted = append(converted, fmt.Sprintf("%s %s", vb6TypeToCSharp(strings.TrimSpace(typ)), strings.TrimSpace(name)))
		} else {
			converted = append(converted, fmt.Sprintf("object %s", strings.TrimSpace(p)))
		}
	}
	return strings.Join(converted, ", ")
}

// vb6BodyReplacements is a crude but deterministic VB6-to-C# textual
// mapping applied to procedure bodies. Anything it misses still
// compiles into a logged placeholder via the surrounding try/catch.
var vb6BodyReplacements = []struct{ from, to string }{
	{"Dim ", "var "},
	{" As Integer", ""},
	{" As String", ""},
	{" As Boolean", ""},
	{" As Long", ""},
	{" As Byte", ""},
	{"Set ", ""},
	{"Nothing", "null"},
	{"True", "true"},
	{"False", "false"},
	{"And", "&&"},
	{"Or", "||"},
	{"Not ", "!"},
	{"<>", "!="},
	{"&", "+"},
}

func convertBody(body, returnType string) string {
	converted := body
	for _, r := range vb6BodyReplacements {
		converted = strings.ReplaceAll(converted, r.from, r.to)
	}
	if returnType != "void" && !strings.Contains(strings.ToLower(converted), "return") {
		switch returnType {
		case "bool":
			converted += "\nreturn true;"
		case "int", "long", "byte":
			converted += "\nreturn 0;"
		case "string":
			converted += "\nreturn string.Empty;"
		default:
			converted += fmt.Sprintf("\nreturn default(%s);", returnType)
		}
	}
	return converted
}

func (g *Generator) generateFields(globals []GlobalVar) string {
	fields := []string{
		"    private int _processedCount;",
		"    private int _errorCount;",
		"    private bool _isProcessing;",
		"    private DateTime _lastProcessTime;",
		"    private readonly object _lockObject = new object();",
	}
	seen := map[string]bool{}
	for _, global := range globals {
		if global.Name == "" {
			continue
		}
		name := fieldNameFor(global.ModuleName, global.Name)
		if seen[name] {
			continue
		}
		seen[name] = true
		fields = append(fields, fmt.Sprintf("    private %s %s;", vb6TypeToCSharp(global.Type), name))
	}
	return strings.Join(fields, "\n")
}

func (g *Generator) generateMethod(proc Procedure) string {
	name := proc.Name
	if name == "" {
		name = "UnknownProcedure"
	}
	methodName := name
	if proc.ModuleName != "" {
		methodName = proc.ModuleName + "_" + name
	}
	returnType := vb6TypeToCSharp(proc.ReturnType)
	if !proc.IsFunction {
		returnType = "void"
	}
	access := "private"
	if strings.EqualFold(proc.AccessLevel, "public") {
		access = "public"
	}

	var body string
	if strings.TrimSpace(proc.Body) != "" {
		body = convertBody(proc.Body, returnType)
	} else {
		body = fmt.Sprintf("_logger.LogDebug(\"Executing converted procedure %s\");", methodName)
		if ret := defaultReturn(returnType); ret != "" {
			body += "\n" + strings.Replace(ret, "return -1;", "return 0;", 1)
		}
	}

	indented := make([]string, 0)
	for _, line := range strings.Split(body, "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		indented = append(indented, "            "+strings.TrimSpace(line))
	}

	errorReturn := defaultReturn(returnType)
	if errorReturn != "" {
		errorReturn = "\n            " + errorReturn
	}

	return fmt.Sprintf(`    %s %s %s(%s)
    {
        _logger.LogDebug("VB6 procedure '%s' called");
        try
        {
%s
        }
        catch (Exception ex)
        {
            _logger.LogError(ex, "Error in VB6 procedure '%s'");%s
        }
    }`, access, returnType, methodName, convertParameters(proc.Parameters),
		methodName, strings.Join(indented, "\n"), methodName, errorReturn)
}

func (g *Generator) generateMethods(procedures []Procedure) string {
	methods := make([]string, 0, len(procedures))
	seen := map[string]bool{}
	for _, proc := range procedures {
		methodName := proc.Name
		if proc.ModuleName != "" {
			methodName = proc.ModuleName + "_" + proc.Name
		}
		if methodName == "" || seen[methodName] {
			continue
		}
		seen[methodName] = true
		methods = append(methods, g.generateMethod(proc))
	}
	return strings.Join(methods, "\n\n")
}

func (g *Generator) generateProcedureCalls(procedures []Procedure, contextMap ContextMap) string {
	byModule := map[string][]Procedure{}
	for _, proc := range procedures {
		if proc.Name == "" {
			continue
		}
		byModule[proc.ModuleName] = append(byModule[proc.ModuleName], proc)
	}
	if len(byModule) == 0 {
		return "            _logger.LogDebug(\"No extracted VB6 procedures found\");"
	}

	main := contextMap.ModuleHierarchy.MainModule
	modules := make([]string, 0, len(byModule))
	for m := range byModule {
		if m != main {
			modules = append(modules, m)
		}
	}
	sort.Strings(modules)
	if _, ok := byModule[main]; ok {
		modules = append([]string{main}, modules...)
	}

	var calls []string
	for _, module := range modules {
		for _, proc := range byModule[module] {
			methodName := proc.Name
			if module != "" {
				methodName = module + "_" + proc.Name
			}
			if proc.IsFunction && vb6TypeToCSharp(proc.ReturnType) != "void" {
				calls = append(calls, fmt.Sprintf("            _ = %s();", methodName))
			} else {
				calls = append(calls, fmt.Sprintf("            %s();", methodName))
			}
		}
	}
	return strings.Join(calls, "\n")
}

func (g *Generator) generateExecuteAsync(mainLogic MainLogic) string {
	delayMs := 500
	if mainLogic.ProcessingPattern == "Timer" {
		delayMs = 1000
	}
	return fmt.Sprintf(`    protected override async Task ExecuteAsync(CancellationToken stoppingToken)
    {
        _logger.LogInformation("VB6 Converted Worker Service started at: {time}", DateTimeOffset.Now);
        try
        {
            while (!stoppingToken.IsCancellationRequested)
            {
                await ProcessMainWorkflow(stoppingToken);
                await Task.Delay(%d, stoppingToken);
            }
        }
        catch (OperationCanceledException)
        {
            _logger.LogInformation("Worker service cancellation requested");
        }
        finally
        {
            _logger.LogInformation("VB6 Converted Worker Service stopped at: {time}", DateTimeOffset.Now);
        }
    }`, delayMs)
}

func (g *Generator) buildWorker(summary ProjectSummary, contextMap ContextMap) string {
	primaryModule := summary.MainLogic.PrimaryModule
	if primaryModule == "" {
		primaryModule = contextMap.ModuleHierarchy.MainModule
	}
	namespace := sanitizeNamespace(primaryModule) + "Namespace"

	methods := g.generateMethods(summary.Procedures)
	if methods != "" {
		methods = "\n" + methods + "\n"
	}

	return fmt.Sprintf(workerTemplate,
		namespace,
		g.generateFields(summary.Globals),
		len(summary.Procedures),
		len(summary.Globals),
		g.generateExecuteAsync(summary.MainLogic),
		g.generateProcedureCalls(summary.Procedures, contextMap),
		methods,
	)
}

func (g *Generator) fallbackWorker(contextMap ContextMap) string {
	summary := emptySummary()
	summary.MainLogic.PrimaryModule = contextMap.ModuleHierarchy.MainModule
	return g.buildWorker(summary, contextMap)
}
