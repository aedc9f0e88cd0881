// internal/page/fixtures_test.go
package page

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/require"
)

const gamePageHTML = `<!DOCTYPE html>
<html>
<head><title>Village overview</title></head>
<body>
  <div id="header"><a href="/logout.php">Logout</a></div>
  <div class="playerRace gaul nationBig"></div>
  <div class="villageName">Capital</div>
  <span class="coordinates">&#x202D;(&#x202D;&#x2212;12&#x202C;|&#x202D;34&#x202C;)&#x202C;</span>
  <span class="population">Population: 245</span>
  <ul id="stockBar">
    <li><span id="l1">1200</span></li>
    <li><span id="l2">800</span></li>
    <li><span id="l3">500</span></li>
    <li><span id="l4">300</span></li>
  </ul>
  <ul id="sidebarVillages">
    <li class="listEntry active" data-did="101"><a href="?newdid=101"><span class="name">Capital</span></a><span class="coords">(-12|34)</span></li>
    <li class="listEntry"><a href="dorf1.php?newdid=202"><span class="name">Outpost</span></a><span class="coords">(5|-7)</span></li>
  </ul>
  <div id="village">
    <div class="buildingSlot" data-name="Granary" data-level="3"></div>
    <div class="buildingSlot" data-name="Main Building" data-level="5"></div>
    <div class="buildingSlot"><span class="name">Warehouse</span><span class="level">Level 2</span></div>
    <div class="buildingSlot"></div>
  </div>
  <table id="troops">
    <tr><td class="ico"><img alt="Phalanx"></td><td class="num">25</td><td class="un">Phalanx</td></tr>
    <tr><td class="ico"><img alt="Theutates Thunder"></td><td class="num">4</td></tr>
  </table>
</body>
</html>`

const buildPageHTML = `<html><body>
  <div class="contract">
    <form action="build.php?id=22" method="post">
      <h2>Warehouse</h2>
      <input type="hidden" name="x" value="9">
      <input type="submit" name="upgrade" value="Upgrade level">
    </form>
  </div>
  <div class="contract">
    <form action="build.php?id=23" method="post">
      <h2>Granary</h2>
      <input type="hidden" name="a" value="1">
      <input type="hidden" name="b" value="2">
      <input type="text" name="note" value="ignored">
      <button class="green build">Build Granary</button>
    </form>
  </div>
</body></html>`

const loginPageHTML = `<html><body>
  <form name="login" action="/login.php" method="post">
    <input type="hidden" name="w" value="1920:1080">
    <input type="text" name="name">
    <input type="password" name="password">
    <input type="hidden" name="login" value="1700000000">
    <button type="submit">Login</button>
  </form>
</body></html>`

func mustDoc(t *testing.T, raw string) *Document {
	t.Helper()
	u, err := url.Parse("http://game.test/dorf1.php")
	require.NoError(t, err)
	doc, err := NewDocument(u, 200, []byte(raw))
	require.NoError(t, err)
	return doc
}
