package schema

// Schema sources are embedded rather than loaded from disk so a broken
// install cannot silently skip validation.

const factSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["type"],
  "properties": {
    "type": {
      "enum": [
        "Signal", "RoleSelection", "ExecutionPlan", "SelectedPlan",
        "TokenMultiplier", "Derived", "Config", "ToolAvailability",
        "Capability", "PolicyConstraint", "PolicyPreference",
        "ToolPolicyStatement"
      ]
    },
    "dimension": { "type": "string", "minLength": 1 },
    "signal": { "type": "string", "minLength": 1 },
    "confidence": { "type": "number", "minimum": 0, "maximum": 1 },
    "role": { "type": "string", "minLength": 1 },
    "plan": { "type": "object" },
    "policyBlocked": { "type": "boolean" },
    "policyAdjusted": { "type": "boolean" },
    "multiplier": { "type": "number", "exclusiveMinimum": 0 },
    "path": { "type": "string", "minLength": 1 },
    "value": {},
    "tools": { "type": "array", "items": { "type": "string", "minLength": 1 } },
    "capability": { "type": "string", "minLength": 1 },
    "constraint": {
      "type": "object",
      "properties": {
        "maxDepth": { "type": "integer", "minimum": 1 },
        "maxFanout": { "type": "integer", "minimum": 1 },
        "maxSequentialSteps": { "type": "integer", "minimum": 1 },
        "maxTaskCycles": { "type": "integer", "minimum": 1 }
      },
      "additionalProperties": false
    },
    "statement": {
      "type": "object",
      "required": ["effect", "tools"],
      "properties": {
        "effect": { "enum": ["allow", "deny"] },
        "tools": { "type": "array", "items": { "type": "string", "minLength": 1 } }
      },
      "additionalProperties": false
    },
    "name": { "type": "string", "minLength": 1 },
    "data": { "type": "object" },
    "provenance": {
      "type": "object",
      "properties": {
        "source": { "type": "string" },
        "producer": { "type": "string" },
        "tier": { "type": "string" }
      },
      "additionalProperties": false
    }
  },
  "additionalProperties": false,
  "allOf": [
    {
      "if": { "properties": { "type": { "const": "Signal" } } },
      "then": { "required": ["dimension", "signal", "confidence"] }
    },
    {
      "if": { "properties": { "type": { "const": "RoleSelection" } } },
      "then": { "required": ["role"] }
    },
    {
      "if": { "properties": { "type": { "const": "ExecutionPlan" } } },
      "then": { "required": ["plan"] }
    },
    {
      "if": { "properties": { "type": { "const": "SelectedPlan" } } },
      "then": { "required": ["plan"] }
    },
    {
      "if": { "properties": { "type": { "const": "TokenMultiplier" } } },
      "then": { "required": ["multiplier"] }
    },
    {
      "if": { "properties": { "type": { "const": "Config" } } },
      "then": { "required": ["path"] }
    },
    {
      "if": { "properties": { "type": { "const": "ToolAvailability" } } },
      "then": { "required": ["tools"] }
    },
    {
      "if": { "properties": { "type": { "const": "Capability" } } },
      "then": { "required": ["capability"] }
    },
    {
      "if": { "properties": { "type": { "const": "PolicyConstraint" } } },
      "then": { "required": ["constraint"] }
    },
    {
      "if": { "properties": { "type": { "const": "ToolPolicyStatement" } } },
      "then": { "required": ["statement"] }
    },
    {
      "if": {
        "properties": { "policyBlocked": { "const": true } },
        "required": ["policyBlocked"]
      },
      "then": { "properties": { "confidence": { "const": 0 } } }
    }
  ]
}`

const planSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["strategy"],
  "properties": {
    "strategy": { "enum": ["direct", "sequential", "parallel", "task", "fallback"] },
    "role": { "type": "string", "minLength": 1 },
    "tools": { "type": "array", "items": { "type": "string", "minLength": 1 } },
    "resolution": {
      "type": "object",
      "properties": {
        "maxCycles": { "type": "integer", "minimum": 1 },
        "maxTokens": { "type": "integer", "minimum": 1 },
        "maxToolCalls": { "type": "integer", "minimum": 0 },
        "timeoutMs": { "type": "integer", "minimum": 1 }
      },
      "additionalProperties": false
    },
    "sequence": {
      "type": "array",
      "minItems": 1,
      "items": {
        "oneOf": [
          { "type": "string", "minLength": 1 },
          {
            "type": "object",
            "required": ["role"],
            "properties": {
              "role": { "type": "string", "minLength": 1 },
              "strategy": { "enum": ["direct", "task"] },
              "tools": { "type": "array", "items": { "type": "string", "minLength": 1 } }
            },
            "additionalProperties": false
          }
        ]
      }
    },
    "roles": {
      "type": "array",
      "minItems": 1,
      "items": { "type": "string", "minLength": 1 }
    },
    "resultStrategy": { "enum": ["last", "concat", "label", "formatted"] },
    "threadAccumulation": { "type": "boolean" },
    "buildThread": { "type": "boolean" },
    "maxTokens": { "type": "integer", "minimum": 1 },
    "taskContext": {
      "type": "object",
      "required": ["cycle", "maxCycles", "isTask"],
      "properties": {
        "cycle": { "type": "integer", "minimum": 1 },
        "maxCycles": { "type": "integer", "minimum": 1 },
        "isTask": { "type": "boolean" },
        "synthesis": { "type": "boolean" }
      },
      "additionalProperties": false
    }
  },
  "additionalProperties": false,
  "allOf": [
    {
      "if": { "properties": { "strategy": { "const": "direct" } } },
      "then": { "required": ["role"] }
    },
    {
      "if": { "properties": { "strategy": { "const": "task" } } },
      "then": { "required": ["role"] }
    },
    {
      "if": { "properties": { "strategy": { "const": "sequential" } } },
      "then": { "required": ["sequence"] }
    },
    {
      "if": { "properties": { "strategy": { "const": "parallel" } } },
      "then": { "required": ["roles"] }
    }
  ]
}`
