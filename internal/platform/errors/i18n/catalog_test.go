package i18n

import "testing"

func TestGetCatalogFallback(t *testing.T) {
	base := GetCatalog("en-US")
	if base == nil {
		t.Fatal("expected base catalog")
	}
	fallback := GetCatalog("missing-locale")
	if fallback != base {
		t.Fatal("expected fallback to en-US catalog")
	}
	if GetCatalog("") != base {
		t.Fatal("expected empty locale to resolve to en-US")
	}
}

func TestGetCatalogMatchesChineseVariants(t *testing.T) {
	for _, locale := range []string{"zh-CN", "zh", "zh-Hans"} {
		if got := GetCatalog(locale).Locale(); got != "zh-CN" {
			t.Fatalf("GetCatalog(%q) = %q, want zh-CN", locale, got)
		}
	}
}

func TestEveryCodeHasBothTranslations(t *testing.T) {
	for code := range enUSCatalog.messages {
		if _, ok := zhCNCatalog.messages[code]; !ok {
			t.Fatalf("zh-CN catalog missing %s", code)
		}
	}
}

func TestFormatRendersMetadata(t *testing.T) {
	cat := GetCatalog("en-US")
	if got := cat.Format(CodeCapacity, map[string]string{"Resource": "Room"}); got != "Room is full" {
		t.Fatalf("unexpected capacity message %q", got)
	}
	if got := cat.Format(CodeCapacity, nil); got != "Capacity exceeded" {
		t.Fatalf("unexpected default capacity message %q", got)
	}
}

func TestFormatFallbacks(t *testing.T) {
	cat := NewCatalog("test", map[Code]string{
		"code": "hello {{.Name}}",
	})

	if cat.Format("unknown", nil) != "unknown" {
		t.Fatal("expected code fallback when template missing")
	}
	if cat.Format("code", nil) != "hello <no value>" {
		t.Fatal("expected template to render missing metadata")
	}
}

func TestFormatTemplateErrorFallback(t *testing.T) {
	cat := NewCatalog("test", map[Code]string{
		"code": "{{ if .Name }}",
	})
	if cat.Format("code", map[string]string{"Name": "X"}) != "{{ if .Name }}" {
		t.Fatal("expected template fallback on parse error")
	}
}

func TestRegisterCatalog(t *testing.T) {
	custom := NewCatalog("custom", map[Code]string{"code": "ok"})
	RegisterCatalog("custom", custom)
	if got := GetCatalog("custom"); got != custom {
		t.Fatal("expected registered catalog")
	}
}
