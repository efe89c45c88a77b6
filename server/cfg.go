package server

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"cuberace/model"
)

type Config struct {
	TickPeriod time.Duration
	Cooldown   time.Duration
	ResetDelay time.Duration
	MapsDir    string
	SendBuffer int
}

// LoadConfig reads config.yaml from the working directory if present and
// falls back to defaults otherwise. CUBERACE_* env vars override both.
func LoadConfig() *Config {
	v := viper.New()
	v.SetDefault("tickMs", 300)
	v.SetDefault("cooldownMs", 500)
	v.SetDefault("resetDelayMs", 3000)
	v.SetDefault("mapsDir", "data")
	v.SetDefault("sendBuffer", 16)
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		log.Printf("LoadConfig no config file, using defaults: %v", err)
	}
	v.SetEnvPrefix("cuberace")
	v.AutomaticEnv()
	return &Config{
		TickPeriod: time.Duration(v.GetInt("tickMs")) * time.Millisecond,
		Cooldown:   time.Duration(v.GetInt("cooldownMs")) * time.Millisecond,
		ResetDelay: time.Duration(v.GetInt("resetDelayMs")) * time.Millisecond,
		MapsDir:    v.GetString("mapsDir"),
		SendBuffer: v.GetInt("sendBuffer"),
	}
}

// defaultMap keeps the server bootable when the maps directory is empty.
const defaultMap = `############
#R   #   B #
# O  # O   #
#  ###V## ##
#    #    ##
## #   ##  #
#  # #  # ##
#     G    #
############`

// LoadMaps reads every *.txt under dir, sorted by filename. With nothing on
// disk it serves the built-in map.
func LoadMaps(dir string) ([]*model.MapDefinition, error) {
	names, err := filepath.Glob(filepath.Join(dir, "*.txt"))
	if err != nil {
		return nil, err
	}
	sort.Strings(names)
	maps := make([]*model.MapDefinition, 0, len(names))
	for _, name := range names {
		file, err := os.Open(name)
		if err != nil {
			return nil, err
		}
		m, err := ReadMap(filepath.Base(name), file)
		file.Close()
		if err != nil {
			return nil, err
		}
		maps = append(maps, m)
	}
	if len(maps) == 0 {
		log.Printf("LoadMaps nothing under %s, using builtin map", dir)
		m, err := ReadMap("builtin", strings.NewReader(defaultMap))
		if err != nil {
			return nil, err
		}
		maps = append(maps, m)
	}
	return maps, nil
}

// ReadMap parses the character-grid format: '#' wall, 'V' ledge, 'O' boulder,
// 'R'/'B' team starts, 'G' goal, anything else open floor. A map without both
// starts and a goal is refused.
func ReadMap(name string, reader io.Reader) (*model.MapDefinition, error) {
	m := &model.MapDefinition{
		Name:   name,
		Walls:  make(map[model.Cell]struct{}),
		Ledges: make(map[model.Cell]struct{}),
		Starts: make(map[model.TeamID]model.Cell),
	}
	hasGoal := false

	scanner := bufio.NewScanner(reader)
	scanner.Split(bufio.ScanLines)
	y := 0
	for scanner.Scan() {
		// rune indexing, so exotic floor characters keep the columns aligned
		line := []rune(scanner.Text())
		if len(line) > m.Width {
			m.Width = len(line)
		}
		for x, char := range line {
			cell := model.Cell{X: x, Y: y}
			switch char {
			case '#':
				m.Walls[cell] = struct{}{}
			case 'V':
				m.Ledges[cell] = struct{}{}
			case 'O':
				m.InitialBoulders = append(m.InitialBoulders, cell)
			case 'R':
				m.Starts[model.TeamRed] = cell
			case 'B':
				m.Starts[model.TeamBlue] = cell
			case 'G':
				m.Goal = cell
				hasGoal = true
			}
		}
		y++
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	m.Height = y

	if m.Width == 0 || m.Height == 0 {
		return nil, fmt.Errorf("map %s: empty grid", name)
	}
	for _, id := range model.TeamOrder {
		start, ok := m.Starts[id]
		if !ok {
			return nil, fmt.Errorf("map %s: no start cell for team %s", name, id)
		}
		if m.IsWall(start) {
			return nil, fmt.Errorf("map %s: start for team %s is a wall", name, id)
		}
	}
	if !hasGoal {
		return nil, fmt.Errorf("map %s: no goal cell", name)
	}
	if m.IsWall(m.Goal) {
		return nil, fmt.Errorf("map %s: goal is a wall", name)
	}
	return m, nil
}
