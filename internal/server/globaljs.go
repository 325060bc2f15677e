package server

import (
	"fmt"
	"net/http"
)

// handleGlobalJS serves the lg.js tracking script.
func (s *Server) handleGlobalJS(w http.ResponseWriter, r *http.Request) {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	serverURL := fmt.Sprintf("%s://%s", scheme, r.Host)

	w.Header().Set("Content-Type", "application/javascript")
	w.Header().Set("Cache-Control", "public, max-age=60")
	w.Write([]byte(GenerateGlobalScript(serverURL)))
}

// GenerateGlobalScript builds lg.js for serverURL. Elements marked
// data-lg-experiment are assigned a sticky variant and log an exposure;
// data-lg-convert elements log a conversion on click. window.lg.track
// records guardrail and metric events.
func GenerateGlobalScript(serverURL string) string {
	return fmt.Sprintf(`(function(){
  var S='%s';

  var vid=localStorage.getItem('lg_vid');
  if(!vid){
    vid=crypto.randomUUID();
    localStorage.setItem('lg_vid',vid);
  }

  var assigned={};

  function variantFor(name,count){
    if(assigned[name]!==undefined)return assigned[name];
    var key='lg_'+name;
    var v=localStorage.getItem(key);
    if(v===null||parseInt(v)>=count){
      v=Math.floor(Math.random()*count);
      localStorage.setItem(key,v);
    }
    assigned[name]=parseInt(v);
    return assigned[name];
  }

  function beacon(x,v,k,val,variants){
    var body={x:x,v:v,k:k,vid:vid};
    if(val!==undefined)body.val=val;
    if(variants)body.variants=variants;
    navigator.sendBeacon(S+'/b',JSON.stringify(body));
  }

  document.querySelectorAll('[data-lg-experiment]').forEach(function(el){
    var name=el.dataset.lgExperiment;
    var variants=JSON.parse(el.dataset.lgVariants||'[]');
    if(variants.length<2)return;

    var v=variantFor(name,variants.length);
    el.setAttribute('data-lg-variant',variants[v]);
    if(el.dataset.lgSwap!==undefined){
      var texts=JSON.parse(el.dataset.lgSwap||'[]');
      if(texts[v])el.textContent=texts[v];
    }
    beacon(name,v,'exposure',undefined,variants);
  });

  document.querySelectorAll('[data-lg-convert]').forEach(function(el){
    var name=el.dataset.lgConvert;
    el.addEventListener('click',function(){
      var v=assigned[name];
      if(v===undefined)v=parseInt(localStorage.getItem('lg_'+name)||'0');
      beacon(name,v,'conversion');
    });
  });

  window.lg={
    variant:function(name){return assigned[name];},
    guardrail:function(name,guardrail){
      if(assigned[name]!==undefined)beacon(name,assigned[name],'guardrail:'+guardrail);
    },
    metric:function(name,metric,value){
      if(assigned[name]!==undefined)beacon(name,assigned[name],'metric:'+metric,value);
    }
  };
})();`, serverURL)
}
