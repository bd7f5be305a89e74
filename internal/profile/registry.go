// Package profile 管理策略参数档案：一个 YAML 文件定义若干套可切换的
// 突破参数（止盈 R、缓冲 tick 等），文件变更时热重载并用 JSON Schema
// 校验，坏档案只告警不生效。
package profile

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"rangebot/internal/logger"
)

// Template 是一套命名的策略参数档案。
type Template struct {
	ID          string         `yaml:"id"`
	Description string         `yaml:"description"`
	Version     int            `yaml:"version"`
	Params      map[string]any `yaml:"params"`
}

type fileConfig struct {
	Profiles map[string]Template `yaml:"profiles"`
}

// Snapshot 是某一版本的完整档案集。
type Snapshot struct {
	Version   int64
	LoadedAt  time.Time
	Templates map[string]Template
}

// ChangeListener 在档案重载成功后触发。
type ChangeListener func(Snapshot)

// paramsSchema 约束档案参数：只允许已知键，数值类型明确。
const paramsSchema = `{
  "type": "object",
  "additionalProperties": false,
  "properties": {
    "tp_r": {"type": "number", "exclusiveMinimum": 0},
    "breakout_buffer_ticks": {"type": "integer", "minimum": 0},
    "sl_buffer_ticks": {"type": "integer", "minimum": 0},
    "max_trades_per_day": {"type": "integer", "minimum": 1},
    "allow_short": {"type": "boolean"},
    "qty": {"type": "integer", "minimum": 1},
    "be_trigger_r": {"type": "number", "exclusiveMinimum": 0},
    "be_offset_ticks": {"type": "integer", "minimum": 0},
    "variant_b_tp_r": {"type": "number", "exclusiveMinimum": 0},
    "variant_c_sl_tight_r": {"type": "number", "exclusiveMinimum": 0}
  }
}`

// Registry 持有当前档案快照并监听文件变更。
type Registry struct {
	path   string
	v      *viper.Viper
	schema *jsonschema.Schema

	mu        sync.RWMutex
	snapshot  Snapshot
	listeners []ChangeListener
}

// NewRegistry 读取档案文件；watch=true 时监听后续修改。
func NewRegistry(path string, watch bool) (*Registry, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("策略档案路径不能为空")
	}
	schema, err := compileParamsSchema()
	if err != nil {
		return nil, err
	}
	v := viper.New()
	v.SetConfigFile(path)
	r := &Registry{path: path, v: v, schema: schema}
	if err := r.reload(); err != nil {
		return nil, err
	}
	if watch {
		v.OnConfigChange(func(fsnotify.Event) {
			if err := r.reload(); err != nil {
				logger.Errorf("策略档案重载失败: %v", err)
				return
			}
			r.notifyListeners()
		})
		v.WatchConfig()
	}
	return r, nil
}

// Snapshot 返回当前档案集副本。
func (r *Registry) Snapshot() Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return cloneSnapshot(r.snapshot)
}

// Template 返回指定 ID 的档案。
func (r *Registry) Template(id string) (Template, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tpl, ok := r.snapshot.Templates[strings.TrimSpace(id)]
	return tpl, ok
}

// OnChange 注册重载回调（在独立 goroutine 里触发）。
func (r *Registry) OnChange(fn ChangeListener) {
	if fn == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listeners = append(r.listeners, fn)
}

func (r *Registry) reload() error {
	cfg, err := r.readFile()
	if err != nil {
		return err
	}
	templates := make(map[string]Template, len(cfg.Profiles))
	for name, tpl := range cfg.Profiles {
		norm := r.normalize(name, tpl)
		if norm == nil {
			continue
		}
		templates[norm.ID] = *norm
	}
	r.mu.Lock()
	r.snapshot = Snapshot{
		Version:   r.snapshot.Version + 1,
		LoadedAt:  time.Now(),
		Templates: templates,
	}
	r.mu.Unlock()
	logger.Infof("策略档案已加载: %d 套 (%s)", len(templates), filepath.Base(r.path))
	return nil
}

func (r *Registry) readFile() (fileConfig, error) {
	if err := r.v.ReadInConfig(); err != nil {
		return fileConfig{}, fmt.Errorf("读取策略档案失败: %w", err)
	}
	// viper 只负责定位与监听，结构化解析交给严格模式的 yaml。
	raw, err := yaml.Marshal(r.v.AllSettings())
	if err != nil {
		return fileConfig{}, err
	}
	var cfg fileConfig
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return fileConfig{}, fmt.Errorf("解析策略档案失败: %w", err)
	}
	return cfg, nil
}

// normalize 校验单套档案，不合规的返回 nil 并告警。
func (r *Registry) normalize(name string, tpl Template) *Template {
	tpl.ID = strings.TrimSpace(tpl.ID)
	if tpl.ID == "" {
		tpl.ID = strings.TrimSpace(name)
	}
	if tpl.Version <= 0 {
		tpl.Version = 1
	}
	tpl.Description = strings.TrimSpace(tpl.Description)
	// 经 JSON 往返把 yaml 解出的数值统一成 schema 认识的类型。
	raw, err := json.Marshal(sanitizeParams(tpl.Params))
	if err != nil {
		logger.Errorf("策略档案序列化失败 id=%s: %v", tpl.ID, err)
		return nil
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		logger.Errorf("策略档案反序列化失败 id=%s: %v", tpl.ID, err)
		return nil
	}
	if doc == nil {
		doc = map[string]any{}
	}
	if err := r.schema.Validate(doc); err != nil {
		logger.Errorf("策略档案校验失败 id=%s: %v", tpl.ID, err)
		return nil
	}
	return &tpl
}

func (r *Registry) notifyListeners() {
	r.mu.RLock()
	snap := cloneSnapshot(r.snapshot)
	listeners := append([]ChangeListener(nil), r.listeners...)
	r.mu.RUnlock()
	for _, fn := range listeners {
		go func(cb ChangeListener) {
			defer recoverListener()
			cb(snap)
		}(fn)
	}
}

func cloneSnapshot(src Snapshot) Snapshot {
	dst := Snapshot{
		Version:   src.Version,
		LoadedAt:  src.LoadedAt,
		Templates: make(map[string]Template, len(src.Templates)),
	}
	for id, tpl := range src.Templates {
		dst.Templates[id] = tpl
	}
	return dst
}

func recoverListener() {
	if v := recover(); v != nil {
		logger.Errorf("策略档案回调 panic: %v", v)
	}
}

func compileParamsSchema() (*jsonschema.Schema, error) {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("params.json", strings.NewReader(paramsSchema)); err != nil {
		return nil, err
	}
	return compiler.Compile("params.json")
}

// sanitizeParams 把字符串形式的数字转回数值，yaml/viper 合流后
// 偶尔会出现 "2.0" 这样的值。
func sanitizeParams(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, child := range val {
			out[k] = sanitizeParams(child)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, child := range val {
			out[i] = sanitizeParams(child)
		}
		return out
	case string:
		s := strings.TrimSpace(val)
		if s == "" {
			return val
		}
		if num, err := strconv.ParseFloat(s, 64); err == nil {
			if num == float64(int64(num)) && !strings.ContainsAny(s, ".eE") {
				return int64(num)
			}
			return num
		}
		return val
	default:
		return val
	}
}

// ApplyTo 把档案参数套到一份突破配置上，未出现的键保持原值。
func (t Template) ApplyTo(cfg map[string]any) map[string]any {
	out := make(map[string]any, len(cfg)+len(t.Params))
	for k, v := range cfg {
		out[k] = v
	}
	for k, v := range t.Params {
		out[k] = sanitizeParams(v)
	}
	return out
}

// MarshalJSON 输出对外展示用的档案形态。
func (t Template) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		ID          string         `json:"id"`
		Description string         `json:"description,omitempty"`
		Version     int            `json:"version"`
		Params      map[string]any `json:"params"`
	}{t.ID, t.Description, t.Version, t.Params})
}
