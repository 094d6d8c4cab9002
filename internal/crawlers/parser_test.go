package crawlers

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/RecoveryAshes/zonehwatch/internal/models"
)

// archiveRow 生成一行归档记录
func archiveRow(i int, mass, redeface bool) string {
	massCell := "<td></td>"
	if mass {
		massCell = fmt.Sprintf(`<td><a href="/archive/ip=10.0.0.%d">M</a></td>`, i)
	}
	redefaceCell := "<td></td>"
	if redeface {
		redefaceCell = fmt.Sprintf(`<td><a href="/archive/domain=site%d.com">R</a></td>`, i)
	}
	return fmt.Sprintf(`<tr>
<td> 2024/05/%02d </td>
<td><a href="/archive/notifier=n%d">notifier%d</a></td>
<td>%s</td>
%s
%s
<td><img src="/images/flags/br.png" title="Brazil"></td>
<td>%s</td>
<td>site%d.com/index.html</td>
<td>Linux</td>
<td><a href="/mirror/id/%d">mirror</a></td>
</tr>`, i, i, i, homepageMark(i), massCell, redefaceCell, specialMark(i), i, 1000+i)
}

func homepageMark(i int) string {
	if i%2 == 0 {
		return "H"
	}
	return ""
}

func specialMark(i int) string {
	if i%3 == 0 {
		return `<img src="/images/star.gif">`
	}
	return ""
}

func archivePage(rows int, pagination string) string {
	var b strings.Builder
	b.WriteString(`<html><body><table id="ldeface">`)
	b.WriteString(`<tr><td>Date</td><td>Notifier</td><td>H</td><td>M</td><td>R</td><td>L</td><td>S</td><td>Domain</td><td>OS</td><td>View</td></tr>`)
	for i := 1; i <= rows; i++ {
		b.WriteString(archiveRow(i, i == 1, i == 2))
	}
	b.WriteString(`<tr><td colspan="10">` + pagination + `</td></tr>`)
	b.WriteString(`<tr><td colspan="10">footer</td></tr>`)
	b.WriteString(`</table></body></html>`)
	return b.String()
}

const middlePagination = `<a href="/archive/page=1">1</a> <strong>2</strong> <a href="/archive/page=3">3</a> <a href="/archive/page=4">4</a>`

func TestRecordParser_ParsePage(t *testing.T) {
	parser := NewRecordParser()

	t.Run("记录数与下一页", func(t *testing.T) {
		records, next, err := parser.ParsePage(archivePage(25, middlePagination))
		if err != nil {
			t.Fatalf("解析失败: %v", err)
		}
		if len(records) != 25 {
			t.Fatalf("期望25条记录, 实际 %d", len(records))
		}
		if next != 3 {
			t.Errorf("下一页 = %d, 期望 3", next)
		}
	})

	t.Run("字段提取", func(t *testing.T) {
		records, _, err := parser.ParsePage(archivePage(3, middlePagination))
		if err != nil {
			t.Fatalf("解析失败: %v", err)
		}

		first := records[0]
		want := models.Record{
			Date:               "2024/05/01",
			Notifier:           "notifier1",
			HomepageDefacement: false,
			MassDefacement:     "10.0.0.1",
			Redefacement:       "",
			Country:            "Brazil",
			Special:            false,
			DefacedURL:         "site1.com/index.html",
			OS:                 "Linux",
			MirrorID:           1001,
		}
		if first != want {
			t.Errorf("第一条记录:\n 实际 %+v\n 期望 %+v", first, want)
		}

		if !records[1].HomepageDefacement || records[1].Redefacement != "site2.com" || records[1].MassDefacement != "" {
			t.Errorf("第二条记录不正确: %+v", records[1])
		}
		if !records[2].Special {
			t.Errorf("第三条记录应为特殊目标: %+v", records[2])
		}
	})

	t.Run("最后一页没有下一页", func(t *testing.T) {
		pagination := `<a href="/archive/page=49">49</a> <strong>50</strong>`
		_, next, err := parser.ParsePage(archivePage(2, pagination))
		if err != nil {
			t.Fatalf("解析失败: %v", err)
		}
		if next != 0 {
			t.Errorf("下一页 = %d, 期望 0", next)
		}
	})

	t.Run("没有数据行", func(t *testing.T) {
		records, _, err := parser.ParsePage(archivePage(0, middlePagination))
		if err != nil {
			t.Fatalf("解析失败: %v", err)
		}
		if len(records) != 0 {
			t.Errorf("期望0条记录, 实际 %d", len(records))
		}
	})

	t.Run("缺少表格", func(t *testing.T) {
		_, _, err := parser.ParsePage("<html><body>nothing</body></html>")
		var parseErr *models.ParseError
		if !errors.As(err, &parseErr) {
			t.Fatalf("期望ParseError, 实际 %v", err)
		}
	})

	t.Run("单元格不足", func(t *testing.T) {
		html := `<table id="ldeface"><tr><td>h</td></tr><tr><td>a</td><td>b</td></tr><tr><td>p</td></tr><tr><td>f</td></tr></table>`
		_, _, err := parser.ParsePage(html)
		var parseErr *models.ParseError
		if !errors.As(err, &parseErr) || parseErr.Stage != "row" {
			t.Fatalf("期望行级ParseError, 实际 %v", err)
		}
	})
}

func TestRecordParser_Classify(t *testing.T) {
	parser := NewRecordParser()

	tests := []struct {
		name string
		html string
		want PageClass
	}{
		{"正常页面", archivePage(2, middlePagination), PageOK},
		{"验证码页", `<html><body><form><img id="cryptogram" src="/captcha.py?12"><input name="captcha"></form></body></html>`, PageChallenge},
		{"会话失效", `<html><head><script src="/z.js"></script><script>var a=toNumbers("x");slowAES.decrypt(a)</script></head></html>`, PageInvalidated},
		{"未知页面", `<html><body>maintenance</body></html>`, PageFatal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := parser.Classify(tt.html)
			if result.Class != tt.want {
				t.Errorf("分类 = %s, 期望 %s", result.Class, tt.want)
			}
			if (result.Err != nil) != (tt.want == PageFatal) {
				t.Errorf("错误 = %v", result.Err)
			}
		})
	}
}

const mirrorPage = `<html><body><ul>
<li class="deface0">Mirror saved on: 2024/05/01 10:11</li>
<li class="deface0"><ul>
  <li class="defacef">Notified by: notifier1</li>
  <li class="defaces">Domain: http://site1.com/very/long/path/index.html</li>
  <li class="defacet">IP address: 10.0.0.1 <img src="/images/flags/br.png" title="Brazil"></li>
</ul></li>
<li class="deface0"><ul>
  <li class="defacef">System: Linux</li>
  <li class="defaces">Web server: Apache</li>
</ul></li>
</ul></body></html>`

func TestRecordParser_ParseMirrorDetail(t *testing.T) {
	parser := NewRecordParser()

	detail, err := parser.ParseMirrorDetail(mirrorPage)
	if err != nil {
		t.Fatalf("解析失败: %v", err)
	}
	want := models.MirrorDetail{
		Date:       "2024/05/01 10:11",
		Notifier:   "notifier1",
		DefacedURL: "http://site1.com/very/long/path/index.html",
		IP:         "10.0.0.1",
		Country:    "Brazil",
		OS:         "Linux",
		Server:     "Apache",
	}
	if detail != want {
		t.Errorf("镜像详情:\n 实际 %+v\n 期望 %+v", detail, want)
	}

	if result := parser.ClassifyMirror(`<img id="cryptogram">`); result.Class != PageChallenge {
		t.Errorf("镜像验证码页分类 = %s", result.Class)
	}
	if result := parser.ClassifyMirror("<p>oops</p>"); result.Class != PageFatal || result.Err == nil {
		t.Errorf("镜像未知页面分类 = %s, err = %v", result.Class, result.Err)
	}
}
