package vbforge

// Output skeletons for the generated .NET 9 Worker Service project.
// workerTemplate slots, in order: namespace, fields, procedure count,
// global count, ExecuteAsync block, procedure calls, methods.
const workerTemplate = `using Microsoft.Extensions.Hosting;
using Microsoft.Extensions.Logging;
using System;
using System.Threading;
using System.Threading.Tasks;
using System.Collections.Generic;
using System.Linq;

namespace %s;

public class Worker : BackgroundService
{
    private readonly ILogger<Worker> _logger;
%s

    public Worker(ILogger<Worker> logger)
    {
        _logger = logger;
        _lastProcessTime = DateTime.Now;
        _logger.LogInformation("VB6 Worker Service initialized with %d procedures and %d globals");
    }

%s

    private async Task ProcessMainWorkflow(CancellationToken stoppingToken)
    {
        if (_isProcessing)
        {
            _logger.LogDebug("Already processing, skipping cycle");
            return;
        }
        _isProcessing = true;
        try
        {
            _logger.LogInformation("Starting VB6 processing cycle #{count}", _processedCount + 1);
            ExecuteVB6Procedures();
            _processedCount++;
            _lastProcessTime = DateTime.Now;
            await Task.Delay(50, stoppingToken);
        }
        catch (OperationCanceledException) when (stoppingToken.IsCancellationRequested)
        {
            throw;
        }
        catch (Exception ex)
        {
            _errorCount++;
            _logger.LogError(ex, "Error in processing cycle #{count}", _processedCount);
        }
        finally
        {
            _isProcessing = false;
        }
    }

    private void ExecuteVB6Procedures()
    {
        lock (_lockObject)
        {
%s
        }
    }
%s
    public int GetProcessedCount() => _processedCount;
    public int GetErrorCount() => _errorCount;
    public bool IsProcessing() => _isProcessing;
    public DateTime GetLastProcessTime() => _lastProcessTime;
}
`

const csprojTemplate = `<Project Sdk="Microsoft.NET.Sdk.Worker">
  <PropertyGroup>
    <TargetFramework>net9.0</TargetFramework>
    <Nullable>enable</Nullable>
    <ImplicitUsings>enable</ImplicitUsings>
    <UserSecretsId>dotnet-MyWindowsService-$(MSBuildProjectName)</UserSecretsId>
    <UseAppHost>true</UseAppHost>
    <PublishSingleFile>true</PublishSingleFile>
    <SelfContained>true</SelfContained>
  </PropertyGroup>
  <ItemGroup>
    <PackageReference Include="Microsoft.Extensions.Hosting" Version="9.0.0" />
    <PackageReference Include="Microsoft.Extensions.Hosting.WindowsServices" Version="9.0.0" />
    <PackageReference Include="Microsoft.Extensions.Logging.Console" Version="9.0.0" />
    <PackageReference Include="Microsoft.Extensions.Logging.EventLog" Version="9.0.0" />
  </ItemGroup>
</Project>`

const programTemplate = `using MyWindowsService;
using Microsoft.Extensions.Logging.Configuration;
using Microsoft.Extensions.Logging.EventLog;

var builder = Host.CreateApplicationBuilder(args);
builder.Logging.ClearProviders();
builder.Logging.AddConsole();
if (OperatingSystem.IsWindows())
{
    builder.Logging.AddEventLog();
}
builder.Services.AddHostedService<Worker>();
builder.Services.AddWindowsService(options =>
{
    options.ServiceName = "VB6 Converted Service";
});
var host = builder.Build();
await host.RunAsync();`

const appSettingsTemplate = `{
  "Logging": {
    "LogLevel": {
      "Default": "Information",
      "Microsoft.Hosting.Lifetime": "Information",
      "MyWindowsService": "Information"
    },
    "Console": {
      "IncludeScopes": true,
      "TimestampFormat": "yyyy-MM-dd HH:mm:ss "
    }
  },
  "WorkerSettings": {
    "ProcessingIntervalMs": 1000,
    "TimeoutMs": 30000,
    "MaxRetries": 50
  }
}`

const devAppSettingsTemplate = `{
  "Logging": {
    "LogLevel": {
      "Default": "Debug",
      "Microsoft.Hosting.Lifetime": "Information",
      "MyWindowsService": "Debug"
    }
  }
}`

const launchSettingsTemplate = `{
  "profiles": {
    "MyWindowsService": {
      "commandName": "Project",
      "dotnetRunMessages": true,
      "environmentVariables": {
        "DOTNET_ENVIRONMENT": "Development"
      }
    },
    "MyWindowsService (Production)": {
      "commandName": "Project",
      "dotnetRunMessages": false,
      "environmentVariables": {
        "DOTNET_ENVIRONMENT": "Production"
      }
    }
  }
}`
